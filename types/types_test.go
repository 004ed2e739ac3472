package types

import (
	"errors"
	"testing"
)

func TestSummaryCounts(t *testing.T) {
	s := Summary{
		Results: []Result{
			{Site: "enshan", Account: "a", Success: true},
			{Site: "enshan", Account: "b", Success: false, Err: errors.New("boom")},
			{Site: "enshan", Account: "c", Success: true},
		},
	}

	if s.Succeeded() != 2 {
		t.Errorf("Expected 2 successes, got %d", s.Succeeded())
	}
	if s.Failed() != 1 {
		t.Errorf("Expected 1 failure, got %d", s.Failed())
	}

	failures := s.Failures()
	if len(failures) != 1 || failures[0].Account != "b" {
		t.Errorf("Expected failure for account b, got %+v", failures)
	}
}

func TestSummaryZeroValues(t *testing.T) {
	var s Summary

	if s.Succeeded() != 0 {
		t.Errorf("Expected 0 successes, got %d", s.Succeeded())
	}
	if s.Failed() != 0 {
		t.Errorf("Expected 0 failures, got %d", s.Failed())
	}
	if s.Failures() != nil {
		t.Errorf("Expected nil failures, got %+v", s.Failures())
	}
}

func TestPageZeroValues(t *testing.T) {
	page := Page{}

	if page.StatusCode != 0 {
		t.Errorf("Expected StatusCode 0, got %d", page.StatusCode)
	}
	if page.Body != "" {
		t.Errorf("Expected empty Body, got '%s'", page.Body)
	}
	if len(page.Cookies) != 0 {
		t.Errorf("Expected no cookies, got %d", len(page.Cookies))
	}
}
