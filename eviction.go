package offlinecache

// trimCache deletes the oldest entries of a generation until at most max remain.
// The key list is read once; concurrent trims may delete the same key, which is a no-op.
func (w *Worker) trimCache(name string, max int) error {
	cache, err := w.storage.Open(name)
	if err != nil {
		return err
	}
	keys, err := cache.Keys()
	if err != nil {
		return err
	}
	for len(keys) > max {
		if _, err := cache.Delete(keys[0]); err != nil {
			return err
		}
		w.log.Trace().Str("cache", name).Str("key", keys[0]).Msg("Evicted")
		keys = keys[1:]
	}
	return nil
}
