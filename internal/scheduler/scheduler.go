package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task 调度执行的任务
type Task func(ctx context.Context)

// Scheduler 固定间隔调度器
//
// 同一时刻最多执行一个任务实例：定时触发与手动触发共用同一条
// 执行路径，任务执行期间到来的触发会合并为至多一次后续执行，
// 不会排队堆积。
type Scheduler struct {
	interval time.Duration
	task     Task
	log      *zap.Logger

	trigger  chan struct{}
	stop     chan struct{}
	done     chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New 创建调度器
func New(interval time.Duration, task Task, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		interval: interval,
		task:     task,
		log:      log,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动调度循环；启动后立即执行一次任务，之后按间隔执行。
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.run(ctx)
	})
}

// TriggerNow 请求立即执行一轮；任务执行中时触发合并，不阻塞调用方。
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop 停止调度并等待在途任务结束。
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	s.task(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped", zap.Error(ctx.Err()))
			return
		case <-s.stop:
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.task(ctx)
		case <-s.trigger:
			s.task(ctx)
		}
	}
}
