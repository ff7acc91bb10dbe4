// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAuthEventCounters(t *testing.T) {
	before := testutil.ToFloat64(AuthEventsRecorded.WithLabelValues("versioned"))
	AuthEventsRecorded.WithLabelValues("versioned").Inc()
	after := testutil.ToFloat64(AuthEventsRecorded.WithLabelValues("versioned"))

	if after != before+1 {
		t.Errorf("recorded counter = %v, want %v", after, before+1)
	}
}

func TestRetentionRowsDeleted(t *testing.T) {
	before := testutil.ToFloat64(RetentionRowsDeleted.WithLabelValues("activity"))
	RetentionRowsDeleted.WithLabelValues("activity").Add(42)
	after := testutil.ToFloat64(RetentionRowsDeleted.WithLabelValues("activity"))

	if after != before+42 {
		t.Errorf("retention counter = %v, want %v", after, before+42)
	}
}

func TestQueueDepthGauge(t *testing.T) {
	QueueDepth.WithLabelValues("authentication-event").Set(7)
	if got := testutil.ToFloat64(QueueDepth.WithLabelValues("authentication-event")); got != 7 {
		t.Errorf("queue depth = %v, want 7", got)
	}
	QueueDepth.WithLabelValues("authentication-event").Set(0)
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/jobs/stats", "200"))
	RecordHTTPRequest("GET", "/api/v1/jobs/stats", 200, 15*time.Millisecond)
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/jobs/stats", "200"))

	if after != before+1 {
		t.Errorf("http counter = %v, want %v", after, before+1)
	}
}

func TestConcurrentRecording(t *testing.T) {
	const goroutines = 10
	const increments = 100

	before := testutil.ToFloat64(JobsClaimed.WithLabelValues("concurrent-test"))

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				JobsClaimed.WithLabelValues("concurrent-test").Inc()
			}
		}()
	}
	wg.Wait()

	after := testutil.ToFloat64(JobsClaimed.WithLabelValues("concurrent-test"))
	if after != before+goroutines*increments {
		t.Errorf("claimed counter = %v, want %v", after, before+goroutines*increments)
	}
}
