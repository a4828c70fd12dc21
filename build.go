//go:build ignore

// build.go - membrane-props build script
// Usage: go run build.go [-target=TARGET] [-v]
// Targets: all, test, clean, release

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	version = "1.0.0"
	command = "membrane-props"
)

// BuildContext holds configuration for the build process
type BuildContext struct {
	Verbose bool
	GOOS    string
	GOARCH  string
}

var (
	rootDir string
	distDir string

	// release platforms as GOOS/GOARCH
	releaseTargets = []string{"linux/amd64", "linux/arm64", "darwin/arm64", "windows/amd64"}

	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func init() {
	cwd, err := os.Getwd()
	if err != nil {
		panic(fmt.Sprintf("Failed to get current directory: %v", err))
	}
	rootDir = cwd
	distDir = filepath.Join(rootDir, "dist")

	if _, err := os.Stat(filepath.Join(rootDir, "go.mod")); os.IsNotExist(err) {
		panic(fmt.Sprintf("go.mod not found in %s. Run the build from the repository root.", rootDir))
	}
}

func main() {
	target := flag.String("target", "all", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	if runtime.GOOS == "windows" {
		colorReset, colorRed, colorGreen, colorYellow, colorBlue, colorCyan = "", "", "", "", "", ""
	}

	printHeader()
	startTime := time.Now()
	ctx := &BuildContext{Verbose: *verbose, GOOS: runtime.GOOS, GOARCH: runtime.GOARCH}

	switch *target {
	case "all":
		buildExecutable(ctx)
	case "test":
		runTests(ctx.Verbose)
	case "clean":
		clean()
	case "release":
		buildRelease(ctx)
	default:
		showHelp()
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("Build completed in %s", time.Since(startTime).Round(time.Millisecond)))
}

func printHeader() {
	fmt.Println(colorCyan + "===========================================" + colorReset)
	fmt.Println(colorCyan + "     membrane-props - Build System         " + colorReset)
	fmt.Println(colorCyan + "===========================================" + colorReset)
	fmt.Println()
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorBlue, colorReset, msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s[SUCCESS]%s %s\n", colorGreen, colorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}

func printWarning(msg string) {
	fmt.Printf("%s[WARNING]%s %s\n", colorYellow, colorReset, msg)
}

func outputName(ctx *BuildContext, suffixed bool) string {
	name := command
	if suffixed {
		name = fmt.Sprintf("%s-%s-%s", command, ctx.GOOS, ctx.GOARCH)
	}
	if ctx.GOOS == "windows" {
		name += ".exe"
	}
	return name
}

func buildExecutableAs(ctx *BuildContext, exeName string) {
	printInfo(fmt.Sprintf("Building %s for %s/%s...", command, ctx.GOOS, ctx.GOARCH))

	outputPath := filepath.Join(distDir, exeName)
	ldflags := fmt.Sprintf("-s -w -X main.Version=%s -X main.BuildTime=%s",
		version, time.Now().UTC().Format(time.RFC3339))

	args := []string{"build", "-trimpath", "-ldflags", ldflags, "-o", outputPath, "./cmd/" + command}
	if ctx.Verbose {
		args = append([]string{"build", "-v"}, args[1:]...)
	}

	cmd := exec.Command("go", args...)
	cmd.Dir = rootDir
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0", "GOOS="+ctx.GOOS, "GOARCH="+ctx.GOARCH)
	cmd.Stderr = os.Stderr
	if ctx.Verbose {
		fmt.Printf("Running: go %s\n", strings.Join(args, " "))
		cmd.Stdout = os.Stdout
	}

	if err := cmd.Run(); err != nil {
		printError(fmt.Sprintf("Failed to build %s: %v", exeName, err))
		os.Exit(1)
	}

	if info, err := os.Stat(outputPath); err == nil {
		sizeMB := float64(info.Size()) / 1024 / 1024
		printSuccess(fmt.Sprintf("Built %s (%.1f MB)", exeName, sizeMB))
	}
}

func buildExecutable(ctx *BuildContext) {
	if err := os.MkdirAll(distDir, 0755); err != nil {
		printError(fmt.Sprintf("Failed to create dist directory: %v", err))
		os.Exit(1)
	}
	buildExecutableAs(ctx, outputName(ctx, false))
}

func runTests(verbose bool) {
	printInfo("Running Go tests...")
	args := []string{"test", "-race"}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, "./...")

	cmd := exec.Command("go", args...)
	cmd.Dir = rootDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		printError(fmt.Sprintf("Go tests failed: %v", err))
		os.Exit(1)
	}
	printSuccess("All tests passed")
}

func clean() {
	printInfo("Cleaning build artifacts...")
	if err := os.RemoveAll(distDir); err != nil {
		printError(fmt.Sprintf("Failed to clean dist directory: %v", err))
		return
	}
	printSuccess("Build artifacts cleaned")
}

// buildRelease cross-compiles every release platform and writes VERSION.txt
func buildRelease(ctx *BuildContext) {
	printInfo("Building release version...")
	clean()
	if err := os.MkdirAll(distDir, 0755); err != nil {
		printError(fmt.Sprintf("Failed to create dist directory: %v", err))
		os.Exit(1)
	}

	for _, target := range releaseTargets {
		goos, goarch, ok := strings.Cut(target, "/")
		if !ok {
			printWarning(fmt.Sprintf("Skipping malformed target %q", target))
			continue
		}
		platform := &BuildContext{Verbose: ctx.Verbose, GOOS: goos, GOARCH: goarch}
		buildExecutableAs(platform, outputName(platform, true))
	}

	versionFile := filepath.Join(distDir, "VERSION.txt")
	content := fmt.Sprintf("%s v%s\nBuilt: %s\n", command, version, time.Now().Format("2006-01-02 15:04:05"))
	if err := os.WriteFile(versionFile, []byte(content), 0644); err != nil {
		printWarning(fmt.Sprintf("Failed to write %s: %v", versionFile, err))
	}

	printSuccess("Release build completed")
}

func showHelp() {
	fmt.Println("Usage: go run build.go [-target=TARGET] [-v]")
	fmt.Println()
	fmt.Println("Targets:")
	fmt.Println("  all      Build membrane-props for the host platform (default)")
	fmt.Println("  test     Run all Go tests with the race detector")
	fmt.Println("  clean    Remove the dist directory")
	fmt.Println("  release  Cross-compile for " + strings.Join(releaseTargets, ", "))
}
