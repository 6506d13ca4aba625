// Package resource maps opaque u32 handles to shared Go objects.
//
// A handle is what crosses the boundary in place of an object that both
// sides reach by reference. The table counts references per handle:
//
//	table := resource.NewTable()
//
//	h, _ := table.Insert("point", p)   // one reference
//	_ = table.Retain("point", h)       // two references
//	v, _ := table.Get("point", h)      // no change
//	_ = table.Release("point", h)      // one reference
//	_ = table.Release("point", h)      // freed; p.Drop() if p is a Dropper
//
// Handle 0 is never issued. Looking up 0 fails with a null_handle error;
// a freed or unknown handle, or one registered under another resource
// name, fails with invalid_handle.
//
// Table implements transcoder.HandleTable, so own and borrow values
// lowered by the transcoder are inserted here and lifted back out.
//
// Typed narrows a table to one resource name and Go type:
//
//	points := resource.NewTyped[*record.Point](table, "point")
//	h, _ := points.Insert(p)
//	p, _ = points.Get(h)
//
// Observers receive created, retained, released and dropped events
// synchronously.
package resource
