package agent

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// keepalive periodically sends a control message so the agent does not drop
// an idle connection.
type keepalive struct {
	interval time.Duration
	send     func() error
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

func newKeepalive(interval time.Duration, send func() error, logger *zap.Logger) *keepalive {
	return &keepalive{
		interval: interval,
		send:     send,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins sending in the background
func (k *keepalive) Start() {
	go k.loop()
	k.logger.Debug("Keepalive started", zap.Duration("interval", k.interval))
}

// Stop is safe to call more than once
func (k *keepalive) Stop() {
	k.stopOnce.Do(func() {
		close(k.stopChan)
	})
}

func (k *keepalive) loop() {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-k.stopChan:
			return
		case <-ticker.C:
			if err := k.send(); err != nil {
				// The read loop reports the broken connection.
				k.logger.Warn("Failed to send keepalive", zap.Error(err))
				return
			}
		}
	}
}
