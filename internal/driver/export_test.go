package driver

// Queued returns the number of transfers not yet started.
func (d *Driver) Queued() int { return len(d.queue) }

// AddrSlot and DataSlot return the beats in the pipeline slots, or nil.
func (d *Driver) AddrSlot() *PendingBeat { return d.addr }
func (d *Driver) DataSlot() *PendingBeat { return d.data }
