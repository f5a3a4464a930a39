// Package worker runs the background side of the room core on asynq:
// presence sweeps, room expiry and snapshot archival.
package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Server wraps the asynq server and its routing mux.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

func NewServer(redisOpt asynq.RedisClientOpt, concurrency int) *Server {
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logrus.WithFields(logrus.Fields{
				"task_type": task.Type(),
			}).WithError(err).Error("Task processing failed")
		}),
	})
	return &Server{srv: srv, mux: asynq.NewServeMux()}
}

// Handle registers a handler for a task type.
func (s *Server) Handle(taskType string, handler asynq.Handler) {
	s.mux.Handle(taskType, handler)
}

// Start runs the server until Shutdown. Blocks.
func (s *Server) Start() error {
	return s.srv.Run(s.mux)
}

// Shutdown stops task processing, waiting for in-flight tasks.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}
