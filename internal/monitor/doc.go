// Package monitor is the game server monitoring pipeline.
//
// One Poller cycle queries a Source, turns the raw response into a Snapshot
// (Extract), swaps it into the shared Cache and hands (previous, next) to the
// Synchronizer, which renames or creates the display channel only when the
// derived name changes.
//
// Readers (chat commands, metrics) only ever call Cache.Load.
package monitor
