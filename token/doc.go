// Package token mints and verifies the self-contained session tokens carried by
// clients. A token is a compact JWT whose subject is the authenticated identity and
// whose exp claim is the absolute session deadline.
//
// Verification is a pure function of the token, the configured keys and the clock:
// it performs no I/O and is safe for concurrent use. It proves a token was minted by
// this process family and has not been altered; it does not prove the session is
// still active. Revocation is only observable through the credential store.
package token
