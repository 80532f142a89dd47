// Package candidate implements the interactive terminal a test taker
// drives against the delivery service. It connects over one of the
// HTTP transports, keeps one current session, and maps short commands
// onto the service's tool surface, printing the session view after
// every call so the candidate always sees where the test stands.
package candidate
