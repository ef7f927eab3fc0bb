// Package automation implements the execution engine for clinic automations.
//
// The service layer owns the whole run of one automation: recipient
// filtering, per-recipient message dispatch, and execution tracking with
// per-recipient log rows. It depends on repository interfaces defined in
// this package and should never import from api/.
//
// Repository implementations live in repository/postgres/.
package automation
