package Adhoc

import (
	"ViewfinderOverlay/logger"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const TimeOutSeconds = 5

type RegisterRequest struct {
	Id        string `json:"id"`
	IP        string `json:"ip"`
	Port      int    `json:"port"`
	Backend   string `json:"backend"`
	Degraded  bool   `json:"degraded"`
	TimeStamp int64  `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

type RegServerConfig struct {
	Port int
	Addr string
}

func (reg *RegServerConfig) SetAddress(addr string, port int) {
	reg.Addr = addr
	reg.Port = port
}

func (reg RegServerConfig) URL() string {
	return fmt.Sprintf("http://%s:%d/api/register", reg.Addr, reg.Port)
}

// Node describes this process to the registry.
type Node struct {
	Id       string
	IP       string
	Port     int
	Backend  string
	Degraded func() bool
}

// Register posts one heartbeat for node.
func Register(ctx context.Context, client *resty.Client, reg RegServerConfig, node Node) (RegisterResponse, error) {
	var respBody RegisterResponse
	reqBody := RegisterRequest{
		Id:        node.Id,
		IP:        node.IP,
		Port:      node.Port,
		Backend:   node.Backend,
		TimeStamp: time.Now().Unix(),
	}
	if node.Degraded != nil {
		reqBody.Degraded = node.Degraded()
	}
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		SetResult(&respBody).
		Post(reg.URL())
	if err != nil {
		return respBody, fmt.Errorf("request error: %w", err)
	}
	if resp.IsError() {
		return respBody, fmt.Errorf("server returned error: %s, body: %s", resp.Status(), resp.String())
	}
	return respBody, nil
}

// SendAliveMessage registers node every interval until ctx is done. Failures
// are logged and retried on the next tick.
func SendAliveMessage(ctx context.Context, wg *sync.WaitGroup, reg RegServerConfig, node Node, interval time.Duration) {
	defer wg.Done()
	if interval <= 0 {
		interval = TimeOutSeconds * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	client := resty.New().SetTimeout(TimeOutSeconds * time.Second)
	log := logger.Named("adhoc").With(zap.String("Registry", reg.URL()), zap.String("ID", node.Id))

	safeDoRequest := func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("SendAliveMessage panic recovered", zap.Any("panic", r))
			}
		}()
		if _, err := Register(ctx, client, reg, node); err != nil && ctx.Err() == nil {
			log.Warn("Heartbeat failed", zap.Error(err))
		}
	}
	safeDoRequest()
	for {
		select {
		case <-ctx.Done():
			log.Info("SendAliveMessage context cancelled, exiting goroutine.")
			return
		case <-ticker.C:
			safeDoRequest()
		}
	}
}
