// Package entity contains the domain types shared across codenav: language server launch data,
// project configuration, the normalized symbol model and tool exposure policies.
package entity
