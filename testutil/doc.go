// Package testutil provides fakes and builders shared by package tests.
//
// MockRequester stands in for the daemon admin API: responses are canned per
// path and every call is recorded for verification. MockPublisher records
// relay publications per subject. The message builders produce daemon
// messages with lifecycle labels or typed payloads.
package testutil
