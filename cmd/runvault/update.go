package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/runvault/runvault/internal/svc"
	"github.com/runvault/runvault/internal/update"
)

var (
	updateCheck     bool
	updateForce     bool
	updateNoRestart bool
)

func newUpdateCmd() *cobra.Command {
	updateCmd := &cobra.Command{
		Use:   "update [version]",
		Short: "Update runvault to the latest version",
		Long: `Update runvault to the latest version from GitHub releases.

By default, downloads the latest release. Optionally specify a version tag.

Examples:
  runvault update           # Update to latest
  runvault update v1.2.3    # Update to specific version
  runvault update --check   # Check for updates without installing
  runvault update --force   # Force update even if same version`,
		Args: cobra.MaximumNArgs(1),
		RunE: runUpdate,
	}

	updateCmd.Flags().BoolVar(&updateCheck, "check", false, "only check for updates, don't install")
	updateCmd.Flags().BoolVarP(&updateForce, "force", "f", false, "force update even if already at same version")
	updateCmd.Flags().BoolVar(&updateNoRestart, "no-restart", false, "don't restart the service after update")

	return updateCmd
}

func runUpdate(cmd *cobra.Command, args []string) error {
	setupLogging()

	currentVersion, err := update.ParseVersion(Version)
	if err != nil {
		log.Warn().Str("version", Version).Msg("could not parse current version")
		currentVersion = &update.Version{Raw: Version}
	}

	fmt.Printf("Current version: %s\n", Version)

	updater := update.NewUpdater(update.Config{
		GitHubOwner: "runvault",
		GitHubRepo:  "runvault",
	})

	var release *update.ReleaseInfo
	if len(args) > 0 {
		fmt.Printf("Target version:  %s\n", args[0])
		release, err = updater.CheckVersion(args[0])
		if err != nil {
			return fmt.Errorf("failed to fetch release %s: %w", args[0], err)
		}
	} else {
		release, err = updater.CheckLatest()
		if err != nil {
			return fmt.Errorf("failed to fetch latest release: %w", err)
		}
		fmt.Printf("Latest version:  %s\n", release.TagName)
	}

	remoteVersion, err := update.ParseVersion(release.TagName)
	if err != nil {
		return fmt.Errorf("failed to parse remote version %s: %w", release.TagName, err)
	}

	needsUpdate := currentVersion.NeedsUpdate(remoteVersion)
	isDowngrade := remoteVersion.NeedsUpdate(currentVersion)

	if !needsUpdate && !updateForce {
		if isDowngrade {
			fmt.Println("\nCurrent version is newer than target. Use --force to downgrade.")
			return nil
		}
		fmt.Println("\nAlready up to date.")
		return nil
	}

	if isDowngrade {
		fmt.Println("\nWarning: This is a downgrade.")
	}

	if updateCheck {
		if needsUpdate {
			fmt.Println("\nUpdate available!")
			fmt.Printf("Run 'runvault update' to install %s\n", release.TagName)
		}
		return nil
	}

	asset, err := release.FindAsset(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return fmt.Errorf("no binary available for %s/%s: %w", runtime.GOOS, runtime.GOARCH, err)
	}

	fmt.Printf("\nDownloading %s...\n", asset.Name)

	downloadPath, err := updater.Download(asset, func(downloaded, total int64) {
		if total > 0 {
			percent := float64(downloaded) / float64(total) * 100
			fmt.Printf("\r  %.1f%% (%d / %d bytes)", percent, downloaded, total)
		}
	})
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer os.Remove(downloadPath)
	fmt.Println()

	fmt.Print("Verifying checksum... ")
	if err := updater.VerifyDownload(downloadPath, asset.Name, release); err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("checksum verification failed: %w", err)
	}
	fmt.Println("OK")

	fmt.Print("Verifying binary... ")
	if err := verifyBinary(downloadPath); err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("binary verification failed: %w", err)
	}
	fmt.Println("OK")

	currentPath, err := update.GetExecutablePath()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	serviceCfg := &svc.ServiceConfig{
		Name:       svc.DefaultServiceName(),
		ConfigPath: svc.DefaultConfigPath(),
	}
	serviceRunning := svc.IsRunning(serviceCfg)
	if serviceRunning {
		fmt.Printf("\nDetected service: %s (running)\n", serviceCfg.Name)
	}

	if serviceRunning && !updateNoRestart {
		if err := svc.CheckPrivileges(); err != nil {
			fmt.Println("\nService is running but you don't have privileges to restart it.")
			fmt.Println("Either run with sudo, or use --no-restart and restart manually.")
			return err
		}

		fmt.Print("Stopping service... ")
		if err := svc.Stop(serviceCfg); err != nil {
			fmt.Println("FAILED")
			log.Warn().Err(err).Msg("failed to stop service")
		} else {
			fmt.Println("OK")
		}
	}

	fmt.Print("Replacing binary... ")
	backupPath, err := update.ReplaceExecutableWithBackup(currentPath, downloadPath)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to replace binary: %w", err)
	}
	fmt.Println("OK")

	fmt.Print("Verifying update... ")
	if err := verifyBinary(currentPath); err != nil {
		fmt.Println("FAILED")
		fmt.Println("Rolling back...")
		if rbErr := update.RollbackReplace(currentPath, backupPath); rbErr != nil {
			return fmt.Errorf("update failed and rollback failed: update error: %w, rollback error: %v", err, rbErr)
		}
		fmt.Println("Rolled back to previous version")
		return fmt.Errorf("update verification failed: %w", err)
	}
	fmt.Println("OK")

	update.CleanupBackup(backupPath)

	if serviceRunning && !updateNoRestart {
		fmt.Print("Starting service... ")
		if err := svc.Start(serviceCfg); err != nil {
			fmt.Println("FAILED")
			return fmt.Errorf("failed to restart service: %w", err)
		}
		fmt.Println("OK")
	}

	fmt.Printf("\nUpdated successfully to %s\n", release.TagName)

	if !serviceRunning || updateNoRestart {
		fmt.Println("Please restart runvault to use the new version.")
	}

	return nil
}

// verifyBinary runs the binary's version command to confirm it executes.
func verifyBinary(binaryPath string) error {
	// Downloaded files land without the execute bit
	_ = os.Chmod(binaryPath, 0755)

	cmd := exec.Command(binaryPath, "version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("binary failed to run: %w (output: %s)", err, string(output))
	}

	if !strings.Contains(strings.TrimSpace(string(output)), "runvault") {
		return fmt.Errorf("unexpected version output: %s", output)
	}

	return nil
}
