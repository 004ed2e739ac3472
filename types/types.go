package types

import (
	"net/http"
	"time"
)

// Cookie is a single name/value pair received from a Set-Cookie header.
type Cookie struct {
	Name  string
	Value string
}

// Page is a fetched response reduced to what the check-in flows consume.
type Page struct {
	StatusCode int
	Body       string
	Cookies    []Cookie
	Header     http.Header
}

// Result describes the outcome of one account task.
type Result struct {
	Site     string
	Account  string
	Success  bool
	Message  string
	Err      error
	Duration time.Duration
}

// Summary aggregates the results of one batch run.
type Summary struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Results  []Result
}

// Succeeded returns the number of successful results.
func (s Summary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Failed returns the number of failed results.
func (s Summary) Failed() int {
	return len(s.Results) - s.Succeeded()
}

// Failures returns only the failed results, in run order.
func (s Summary) Failures() []Result {
	var out []Result
	for _, r := range s.Results {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}
