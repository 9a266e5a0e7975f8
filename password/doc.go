// Package password verifies and produces password hashes for principal records.
//
// Three encodings are understood:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>   (PHC, default for new hashes)
//	$2a$/$2b$/$2y$...                                              (bcrypt)
//	scrypt:<n>:<r>:<p>$<salt>$<hexhash>                            (Werkzeug scrypt)
//
// [Chain] dispatches verification on the encoding prefix so records written by
// older deployments keep working, while new hashes use the configured primary.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. It never stores passwords and
// never logs plaintext or hash material.
package password
