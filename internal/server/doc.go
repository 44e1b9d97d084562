// Package server implements the TCP and UDP echo listeners.
// TCP connections accumulate bytes until a minimum length is reached and then get
// the whole accumulation written back; UDP datagrams are echoed one by one when
// they meet the same minimum length.
package server
