// Package sqlstore implements authcore.PrincipalStore on PostgreSQL.
//
// It reads and writes the authentication table: auth_cd_id, auth_tx_* text
// columns, auth_st_* single-character status flags ("1" on, "0" off),
// auth_dt_* timestamps stored as UTC, and the auth_nr_retry_count lockout
// counter.
package sqlstore
