package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// performReset executes a confirmed destructive action: it clears the files
// backing the chosen scope and shows what happened. The caller exits
// afterwards so the supervisor restarts the appliance into first-boot setup.
func performReset(action ResetAction, files FilesConfig, surface Surface, lang string, logger *slog.Logger) {
	logger.Info("performing reset", "action", action)

	if surface != nil {
		_ = surface.Draw(func(f Frame) {
			f.Text(0, 0, tr(lang, "resetting"))
			f.Text(0, 16, tr(lang, "action")+": "+string(action))
			f.Text(0, 32, tr(lang, "please_wait"))
		})
	}

	var deleted []string
	remove := func(path string) {
		if path == "" {
			return
		}
		err := os.Remove(path)
		switch {
		case err == nil:
			deleted = append(deleted, path)
		case os.IsNotExist(err):
		default:
			logger.Warn("reset: failed to delete file", "path", path, "error", err)
		}
	}

	if action == ResetWifi || action == ResetBoth {
		remove(files.BootConfig)
	}
	if action == ResetQR || action == ResetBoth {
		remove(filepath.Join(files.SecretDir, "otp_secret.txt"))
		remove(filepath.Join(files.SecretDir, "otp_qr.png"))
	}

	logger.Info("reset complete", "deleted", deleted)

	// Make sure the deletions hit disk before the supervisor restarts us.
	unix.Sync()

	// Leave the message on screen long enough to read.
	time.Sleep(2 * time.Second)
}
