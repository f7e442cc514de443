// Package prefs is the single source of truth for accessibility preferences.
//
// A Store owns one preferences Document per storage key. Consumers read
// cloned snapshots, submit partial updates, and subscribe to events:
//
//	store := prefs.New(prefs.WithStorage(storage.NewMemory()))
//	if err := store.Initialize(ctx); err != nil {
//	    return err
//	}
//
//	sub := store.OnChange(func(ev prefs.Event) {
//	    log.Printf("changed: %+v", ev.Diff)
//	})
//	defer sub.Unsubscribe()
//
//	err := store.Update(ctx, prefs.Patch{
//	    Sensory: &prefs.SensoryPatch{MotionReduction: prefs.Ptr(true)},
//	})
//
// # Updates
//
// An update is merged section by section, field by field onto the current
// document and the merged candidate is validated against the embedded
// schema. A rejected update mutates nothing, performs no I/O and publishes
// an invalid event before the call returns.
//
// # Versions
//
// Stored documents may carry an older schemaVersion. Initialize walks the
// Registry's migration chain forward until the document reaches the current
// version. Documents newer than the current version are refused.
//
// # Concurrency
//
// The in-memory document is guarded by a mutex, so reads are safe from any
// goroutine. Updates are not queued: validation and commit are serialized,
// while persistence and event delivery happen after the lock is released.
package prefs
