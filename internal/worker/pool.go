package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Job 一次待执行的扫描
type Job struct {
	ScanID   string
	FilePath string
	Source   string
	resultCh chan error
}

// Runner 执行单次扫描的函数（由 service 层提供）
type Runner func(ctx context.Context, job *Job) error

// Pool 扫描 worker 池。队列满时 Submit 直接报错而不是阻塞，
// 背压交给上游（API 返回 503 或队列 Nack）。
type Pool struct {
	workers int
	jobChan chan *Job
	runner  Runner
	logger  *logrus.Logger
	wg      sync.WaitGroup
	active  int32
}

// NewPool 创建 worker 池
func NewPool(workers, queueSize int, runner Runner, logger *logrus.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pool{
		workers: workers,
		jobChan: make(chan *Job, queueSize),
		runner:  runner,
		logger:  logger,
	}
}

// Start 启动 worker
func (p *Pool) Start(ctx context.Context) {
	p.logger.WithField("workers", p.workers).Info("Starting worker pool")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			p.logger.WithField("worker_id", id).Info("Worker shutting down")
			return
		case job, ok := <-p.jobChan:
			if !ok {
				return
			}

			atomic.AddInt32(&p.active, 1)
			p.logger.WithFields(logrus.Fields{
				"worker_id": id,
				"scan_id":   job.ScanID,
				"file_path": job.FilePath,
			}).Info("Running scan")

			err := p.runner(ctx, job)
			atomic.AddInt32(&p.active, -1)

			if err != nil {
				p.logger.WithError(err).WithFields(logrus.Fields{
					"worker_id": id,
					"scan_id":   job.ScanID,
				}).Error("Scan execution failed")
			}

			if job.resultCh != nil {
				job.resultCh <- err
				close(job.resultCh)
			}
		}
	}
}

// Submit 异步提交
func (p *Pool) Submit(job *Job) error {
	select {
	case p.jobChan <- job:
		p.logger.WithField("scan_id", job.ScanID).Debug("Scan submitted to pool")
		return nil
	default:
		return fmt.Errorf("scan queue is full")
	}
}

// SubmitAndWait 提交并等待完成
func (p *Pool) SubmitAndWait(ctx context.Context, job *Job) error {
	job.resultCh = make(chan error, 1)

	select {
	case p.jobChan <- job:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-job.resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 停止 worker 池，等待在手任务完成
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool")
	close(p.jobChan)
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// Stats 池大小、活跃数、排队数
func (p *Pool) Stats() (size, active, queued int) {
	return p.workers, int(atomic.LoadInt32(&p.active)), len(p.jobChan)
}
