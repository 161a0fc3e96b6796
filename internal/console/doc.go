// Package console talks to the transaction building service. The service
// is the sole authority over transaction content: this package registers
// the executor account, requests calldata bundles and reports confirmed
// transaction hashes back, but never assembles calldata locally.
package console
