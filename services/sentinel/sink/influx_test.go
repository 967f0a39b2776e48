// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sink

import (
	"context"
	"errors"
	"testing"
	"time"
)

func validInfluxConfig() *InfluxConfig {
	return &InfluxConfig{
		URL:    "http://localhost:8086",
		Token:  "test-token",
		Org:    "aleutian",
		Bucket: "pipeline_qa",
	}
}

func TestInfluxConfig_Validate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		if err := validInfluxConfig().Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		cases := map[string]func(*InfluxConfig){
			"url":    func(c *InfluxConfig) { c.URL = "" },
			"token":  func(c *InfluxConfig) { c.Token = "" },
			"bucket": func(c *InfluxConfig) { c.Bucket = "" },
		}
		for name, clear := range cases {
			t.Run(name, func(t *testing.T) {
				cfg := validInfluxConfig()
				clear(cfg)
				if err := cfg.Validate(); err == nil {
					t.Errorf("Validate() should fail for missing %s", name)
				}
			})
		}
	})
}

func TestNewInfluxSink(t *testing.T) {
	t.Run("rejects nil config", func(t *testing.T) {
		_, err := NewInfluxSink(nil)
		if !errors.Is(err, ErrInvalidInfluxConfig) {
			t.Errorf("Expected ErrInvalidInfluxConfig, got %v", err)
		}
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		_, err := NewInfluxSink(&InfluxConfig{URL: "http://localhost:8086"})
		if !errors.Is(err, ErrInvalidInfluxConfig) {
			t.Errorf("Expected ErrInvalidInfluxConfig, got %v", err)
		}
	})

	t.Run("creates without connecting", func(t *testing.T) {
		// The client buffers writes; construction needs no live server.
		s, err := NewInfluxSink(validInfluxConfig())
		if err != nil {
			t.Fatalf("NewInfluxSink failed: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Errorf("Close error = %v, want nil", err)
		}
	})
}

func TestInfluxSink_RecordAfterClose(t *testing.T) {
	s, err := NewInfluxSink(validInfluxConfig())
	if err != nil {
		t.Fatalf("NewInfluxSink failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data := &ExecutionData{Stage: "research", Duration: time.Second, Timestamp: time.Now()}
	if err := s.RecordExecution(context.Background(), data); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("RecordExecution after close error = %v, want ErrSinkClosed", err)
	}
	if err := s.RecordRefinement(context.Background(), &RefinementData{Attempt: 1}); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("RecordRefinement after close error = %v, want ErrSinkClosed", err)
	}
	if err := s.RecordValidation(context.Background(), &ValidationData{}); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("RecordValidation after close error = %v, want ErrSinkClosed", err)
	}
}

func TestInfluxSink_NilData(t *testing.T) {
	s, err := NewInfluxSink(validInfluxConfig())
	if err != nil {
		t.Fatalf("NewInfluxSink failed: %v", err)
	}
	defer s.Close()

	if err := s.RecordExecution(context.Background(), nil); !errors.Is(err, ErrNilData) {
		t.Errorf("RecordExecution(nil) error = %v, want ErrNilData", err)
	}
}
