// Package watcher reloads the settings file when it changes on disk.
//
// The watcher observes the directory holding settings.json rather than the
// file itself, so editors that save by writing a temporary file and
// renaming it over the original are picked up. Bursts of events are
// debounced and the reloaded settings are handed to a callback.
//
// Example usage:
//
//	w, err := watcher.New(config.SettingsPath(dir), func(s config.Settings) {
//		agent.ApplySettings(s)
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := w.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer w.Stop()
package watcher
