// Package checkin signs forum accounts in every day.
//
// Features:
//   - Solves the ydclearance cookie challenge locally (see package waf)
//   - Optional JavaScript engine fallback when the challenge format drifts
//   - Bounded parallel runs with rate limiting and saved sessions
//   - Summary tables and Bark or mail notifications
package checkin
