package shared

// LedgerLockKey builds the advisory lock key that serialises writes to one
// ledger table family.
func LedgerLockKey(prefix string) string {
	return prefix + "_budget"
}
