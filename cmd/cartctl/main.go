// cartctl is a CLI tool for driving a cartd session by hand.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	cartctl get      [-server URL]
//	cartctl add      -product ID [-variant ID] [-qty N] [-price MINOR] [-name NAME]
//	cartctl update   -key KEY -qty N
//	cartctl remove   -key KEY
//	cartctl clear
//	cartctl refresh
//	cartctl select   [-key KEY | -all] [-off]
//	cartctl login    -user ID -token TOKEN
//	cartctl logout
//	cartctl notes
//
// Examples:
//
//	cartctl add -product 60 -qty 2 -price 1250
//	cartctl update -key 60 -qty 5
//	cartctl select -all -off && cartctl select -key 60
//	cartctl login -user u-1 -token secret
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cart-sync/internal/handler"
	"cart-sync/internal/model"
	"cart-sync/internal/notify"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

// commands maps each command name to its runner.
var commands = map[string]func(args []string) error{
	"get":     runGet,
	"add":     runAdd,
	"update":  runUpdate,
	"remove":  runRemove,
	"clear":   runClear,
	"refresh": runRefresh,
	"select":  runSelect,
	"login":   runLogin,
	"logout":  runLogout,
	"notes":   runNotes,
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "-h", "-help", "--help", "help":
		printUsage()
		return
	}
	run, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err := run(os.Args[2:]); err != nil {
		fatal("%v", err)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cartctl - cart session tool

Usage:
  cartctl <command> [options]

Commands:
  get       Show the cart with per-line sync state
  add       Add a product
  update    Set a line's quantity (0 removes it)
  remove    Remove a line
  clear     Remove every line
  refresh   Reload the cart from the backend
  select    Select or unselect lines for checkout
  login     Sign in and merge the guest cart
  logout    Sign out and start a new guest cart
  notes     Print notifications raised since the last call

Global options (every command):
  -server URL   cartd base URL (default http://localhost:8080)
  -q            Quiet mode - only print the essentials
  -v            Verbose - show full request/response
  -no-color     Disable colored output

Run 'cartctl <command> -h' for command options.
`)
}

// newFlagSet returns a flag set carrying the global flags.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&serverURL, "server", "http://localhost:8080", "cartd base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cartctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runGet(args []string) error {
	parse(newFlagSet("get", "get [options]"), args)
	return cartRequest("GET", "/cart", nil, "Cart retrieved")
}

func runAdd(args []string) error {
	fs := newFlagSet("add", "add -product ID [options]")
	var req handler.AddItemRequest
	fs.StringVar(&req.ProductID, "product", "", "Product ID (required)")
	fs.StringVar(&req.VariantID, "variant", "", "Variant ID")
	fs.StringVar(&req.Name, "name", "", "Display name until the backend answers")
	fs.IntVar(&req.Quantity, "qty", 1, "Quantity")
	fs.Int64Var(&req.UnitPrice, "price", 0, "Unit price in minor units")
	parse(fs, args)

	if req.ProductID == "" {
		fs.Usage()
		os.Exit(1)
	}
	return cartRequest("POST", "/cart/items", req, "Item added")
}

func runUpdate(args []string) error {
	fs := newFlagSet("update", "update -key KEY -qty N [options]")
	key := fs.String("key", "", "Line key: product or product:variant (required)")
	qty := fs.Int("qty", -1, "New quantity (required)")
	parse(fs, args)

	if *key == "" || *qty < 0 {
		fs.Usage()
		os.Exit(1)
	}
	return cartRequest("PUT", "/cart/items/"+url.PathEscape(*key), handler.QuantityRequest{Quantity: qty}, "Quantity set")
}

func runRemove(args []string) error {
	fs := newFlagSet("remove", "remove -key KEY [options]")
	key := fs.String("key", "", "Line key (required)")
	parse(fs, args)

	if *key == "" {
		fs.Usage()
		os.Exit(1)
	}
	return cartRequest("DELETE", "/cart/items/"+url.PathEscape(*key), nil, "Item removed")
}

func runClear(args []string) error {
	parse(newFlagSet("clear", "clear [options]"), args)
	return cartRequest("DELETE", "/cart", nil, "Cart cleared")
}

func runRefresh(args []string) error {
	parse(newFlagSet("refresh", "refresh [options]"), args)
	return cartRequest("POST", "/cart/refresh", nil, "Cart reloaded")
}

func runSelect(args []string) error {
	fs := newFlagSet("select", "select [-key KEY | -all] [-off] [options]")
	key := fs.String("key", "", "Line key")
	all := fs.Bool("all", false, "Apply to every line")
	off := fs.Bool("off", false, "Unselect instead of select")
	parse(fs, args)

	path := "/cart/selection"
	switch {
	case *all:
	case *key != "":
		path += "/" + url.PathEscape(*key)
	default:
		fs.Usage()
		os.Exit(1)
	}

	var sel handler.SelectionView
	if err := doRequest("PUT", path, handler.SelectRequest{Selected: !*off}, &sel); err != nil {
		return err
	}
	printSuccess("Selection updated")
	printSelection(os.Stdout, sel)
	return nil
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

type sessionResponse struct {
	GuestID       string            `json:"guest_id"`
	UserID        string            `json:"user_id"`
	Authenticated bool              `json:"authenticated"`
	Cart          *handler.CartView `json:"cart"`
}

func runLogin(args []string) error {
	fs := newFlagSet("login", "login -user ID -token TOKEN [options]")
	var req handler.LoginRequest
	fs.StringVar(&req.UserID, "user", "", "User ID (required)")
	fs.StringVar(&req.Token, "token", "", "User credential (required)")
	parse(fs, args)

	if req.UserID == "" || req.Token == "" {
		fs.Usage()
		os.Exit(1)
	}
	return sessionRequest("/session/login", req, "Signed in")
}

func runLogout(args []string) error {
	parse(newFlagSet("logout", "logout [options]"), args)
	return sessionRequest("/session/logout", nil, "Signed out")
}

func sessionRequest(path string, body any, done string) error {
	var resp sessionResponse
	if err := doRequest("POST", path, body, &resp); err != nil {
		return err
	}
	if quiet {
		fmt.Println(resp.GuestID)
		return nil
	}
	printSuccess("%s", done)
	if resp.Authenticated {
		fmt.Printf("  User: %s%s%s\n", colorCyan, resp.UserID, colorReset)
	}
	fmt.Printf("  Guest: %s%s%s\n", colorGray, resp.GuestID, colorReset)
	if resp.Cart != nil {
		printCart(os.Stdout, *resp.Cart)
	}
	return printNotes()
}

func runNotes(args []string) error {
	parse(newFlagSet("notes", "notes [options]"), args)
	return printNotes()
}

// =============================================================================
// HTTP
// =============================================================================

// cartRequest sends a cart route and prints the cart it answers with, followed by any
// notifications the operation raised.
func cartRequest(method, path string, body any, done string) error {
	var view handler.CartView
	if err := doRequest(method, path, body, &view); err != nil {
		return err
	}
	if quiet {
		fmt.Println(view.Display)
		return nil
	}
	printSuccess("%s", done)
	printCart(os.Stdout, view)
	return printNotes()
}

func printNotes() error {
	var resp struct {
		Notifications []notify.Message `json:"notifications"`
	}
	saved := verbose
	verbose = false
	defer func() { verbose = saved }()
	if err := doRequest("GET", "/notifications", nil, &resp); err != nil {
		return err
	}
	for _, msg := range resp.Notifications {
		switch msg.Severity {
		case notify.Error:
			printError("%s", msg.Text)
		case notify.Warning:
			printWarning("%s", msg.Text)
		default:
			printInfo("%s", msg.Text)
		}
	}
	return nil
}

// errorBody is the error envelope cartd answers with.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doRequest(method, path string, body, out any) error {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, strings.TrimSuffix(serverURL, "/")+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if verbose {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if verbose {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		var e errorBody
		if json.Unmarshal(respBody, &e) == nil && e.Error.Code != "" {
			return fmt.Errorf("%s: %s", e.Error.Code, e.Error.Message)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printCart(w io.Writer, v handler.CartView) {
	if len(v.Items) == 0 {
		fmt.Fprintf(w, "  %s(empty cart)%s\n", colorGray, colorReset)
	}
	for _, item := range v.Items {
		mark := " "
		if item.Selected {
			mark = "*"
		}
		name := item.Name
		if name == "" {
			name = item.Key
		}
		fmt.Fprintf(w, "  %s %-24s x%-3d %12s  %s\n",
			mark, name, item.Quantity, model.FormatAmount(item.TotalPrice, v.Currency), stateLabel(item.State))
	}
	fmt.Fprintf(w, "  Total: %s%s%s (%d items)\n", colorGreen, v.Display, colorReset, v.TotalItems)
	printSelection(w, v.Selection)
}

func printSelection(w io.Writer, s handler.SelectionView) {
	fmt.Fprintf(w, "  Selected: %s (%d items)\n", s.Display, s.Count)
}

// stateLabel colors a line's sync state; committed lines print nothing.
func stateLabel(state string) string {
	switch state {
	case "pending_optimistic":
		return colorYellow + "syncing" + colorReset
	case "rolling_back":
		return colorRed + "rolling back" + colorReset
	default:
		return ""
	}
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Println(pretty.String())
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...any) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...any) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
