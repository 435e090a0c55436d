// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/camflix/recommender/internal/recommend"
	"github.com/camflix/recommender/internal/similarity"
)

type mockSimilarityRunner struct {
	runs atomic.Int32
	err  error
}

func (m *mockSimilarityRunner) Run(_ context.Context) (*similarity.BatchResult, error) {
	m.runs.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return &similarity.BatchResult{}, nil
}

type mockRecommendRunner struct {
	runs atomic.Int32
}

func (m *mockRecommendRunner) GenerateAll(_ context.Context) (*recommend.BatchResult, error) {
	m.runs.Add(1)
	return &recommend.BatchResult{}, nil
}

type mockPurger struct {
	runs atomic.Int32
}

func (m *mockPurger) PurgeExpired(_ context.Context) (int64, error) {
	m.runs.Add(1)
	return 0, nil
}

type mockHTTPServer struct {
	listenErr  error
	shutdowns  atomic.Int32
	blockUntil chan struct{}
}

func (m *mockHTTPServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.blockUntil
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(_ context.Context) error {
	m.shutdowns.Add(1)
	close(m.blockUntil)
	return nil
}

func TestSimilarityServiceRunOnStartup(t *testing.T) {
	runner := &mockSimilarityRunner{}
	svc := NewSimilarityService(runner, SimilarityServiceConfig{
		Interval:     time.Hour,
		RunOnStartup: true,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for runner.runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("startup batch never ran")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
}

func TestSimilarityServiceTickerRuns(t *testing.T) {
	runner := &mockSimilarityRunner{}
	svc := NewSimilarityService(runner, SimilarityServiceConfig{
		Interval: 20 * time.Millisecond,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for runner.runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("runs = %d, want >= 2", runner.runs.Load())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	cancel()
	<-done
}

func TestSimilarityServiceSurvivesBatchError(t *testing.T) {
	runner := &mockSimilarityRunner{err: errors.New("batch exploded")}
	svc := NewSimilarityService(runner, SimilarityServiceConfig{
		Interval: 10 * time.Millisecond,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for runner.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("runs = %d, want >= 3 (service must keep ticking after failures)", runner.runs.Load())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
}

func TestRecommendServiceTickerRuns(t *testing.T) {
	runner := &mockRecommendRunner{}
	svc := NewRecommendService(runner, RecommendServiceConfig{
		Interval: 20 * time.Millisecond,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for runner.runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("generation batch never ran")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	cancel()
	<-done
}

func TestCleanupServiceTickerRuns(t *testing.T) {
	purger := &mockPurger{}
	svc := NewCleanupService(purger, CleanupServiceConfig{
		Interval: 20 * time.Millisecond,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for purger.runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("cleanup never ran")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	cancel()
	<-done
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	server := &mockHTTPServer{blockUntil: make(chan struct{})}
	svc := NewHTTPService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancellation")
	}

	if server.shutdowns.Load() != 1 {
		t.Errorf("shutdowns = %d, want 1", server.shutdowns.Load())
	}
}

func TestHTTPServiceListenFailure(t *testing.T) {
	server := &mockHTTPServer{listenErr: errors.New("port in use")}
	svc := NewHTTPService(server, time.Second)

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("Serve() = nil, want error when listen fails")
	}
}

func TestServiceNames(t *testing.T) {
	tests := []struct {
		name string
		got  string
	}{
		{"similarity", NewSimilarityService(&mockSimilarityRunner{}, SimilarityServiceConfig{}, zerolog.Nop()).String()},
		{"recommend", NewRecommendService(&mockRecommendRunner{}, RecommendServiceConfig{}, zerolog.Nop()).String()},
		{"cleanup", NewCleanupService(&mockPurger{}, CleanupServiceConfig{}, zerolog.Nop()).String()},
		{"http", NewHTTPService(&mockHTTPServer{}, 0).String()},
	}
	for _, tt := range tests {
		if tt.got == "" {
			t.Errorf("%s service String() is empty", tt.name)
		}
	}
}
