// Package broadcast implements the broadcast pipeline core: the per-admin
// draft state machine that assembles a campaign step by step, input parsing
// for URL buttons and schedule datetimes, and the delivery runner that fans a
// confirmed record out to its resolved audience.
//
// Drafts are ephemeral and keyed by admin id; nothing is persisted until the
// admin confirms. A confirmed draft either runs immediately through the
// Runner or is stored with status "scheduled" for the poller to pick up.
package broadcast
