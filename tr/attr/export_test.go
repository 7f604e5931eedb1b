package attr

// Owners returns the number of owners file watches can still reach.
func (fs *Files) Owners() int {
	return len(fs.owners)
}
