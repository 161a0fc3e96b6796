// Package wallet wraps the EVM account used to sign and broadcast
// transactions. It exposes a narrow client interface so the simulator can
// depend on read-only chain access alone.
package wallet
