// Package harness runs multi-device sync scenarios against real
// orchestrators.
//
// Each device in a scenario gets its own SQLite store, bolt anchor and peer
// engine. Devices share one in-memory network and one manual clock, so a
// scenario replays identically on every run and its final state can be
// compared against a golden file.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: newest_wins
//	description: "Later saves replace earlier ones once devices connect"
//	devices:
//	  - name: laptop
//	  - name: phone
//	    strategy: newest
//	steps:
//	  - device: laptop
//	    save: { data: { name: Ada, level: 1 } }
//	  - connect: [laptop, phone]
//	assertions:
//	  - type: converged
//	  - type: record
//	    device: phone
//	    expect: { level: 1 }
//
// Every step carries exactly one action:
//
//   - save: write a player record (id defaults to "current")
//   - session: store a study session
//   - connect, disconnect: link or unlink two devices
//   - transfer: export from device and import on another, optionally encrypted
//   - backup: create a backup of the given type
//   - restore: restore the newest backup of the given type
//
// The clock moves forward one second before each step, and the harness waits
// for the network to go quiet before running the next one.
//
// # Assertion Types
//
//   - record: a record's data contains the expected fields, or is absent
//   - version: a record has the given version
//   - peers: a device has the given number of connected peers
//   - backups: a device holds the given number of backups
//   - converged: every device stores the same records at the same versions
package harness
