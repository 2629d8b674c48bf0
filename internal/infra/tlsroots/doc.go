// Package tlsroots builds the trusted root set for backend connections:
// the system roots plus any private CA certificates from configuration.
package tlsroots
