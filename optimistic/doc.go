// Package optimistic applies record writes to in-memory lists before the
// remote store confirms them.
//
// # Overview
//
// A Collection keeps one list per owner (the goal for notes and
// accomplishments, the user for goals). Writes are visible synchronously and
// reconciled in the background:
//
//	notes := optimistic.NewCollection("notes", source, optimistic.NoteHandlers(), resolver,
//		optimistic.WithCounts(counter, model.KindNotes),
//	)
//
//	m, err := notes.Create(ctx, goalID, model.Note{Content: "ran 5k"})
//	if err != nil {
//		return err // validation, nothing changed
//	}
//	// notes.Items(goalID)[0] is the placeholder under m.ID(), a temporary id
//	saved, err := m.Wait(ctx)
//
// # Lifecycle
//
// Every mutation starts Pending and ends either Reconciled or RolledBack:
//
//   - Reconciled creates follow the collection Policy. RefetchOwner reloads the
//     owner's list and corrects its count (+1, then a real recount).
//     ReplaceInPlace swaps the placeholder and resolves its temporary id on the
//     Reconciler so dependents switch to the server id.
//   - Rolled back mutations restore the list exactly as it was and are reported
//     to the Notifier. Counts are left alone.
//
// Children cannot be created under an owner that has no server id yet; such
// creates roll back with ErrOwnerPending unless the owner already resolved.
// Updates and deletes of records that only exist locally fail fast with
// ErrNotPersisted.
//
// Distinct submissions never merge, even for identical records.
package optimistic
