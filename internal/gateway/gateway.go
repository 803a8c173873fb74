// Package gateway is the websocket-facing layer. It decodes event frames,
// attaches an identity to each connection and routes every operation to the
// owning subsystem. All state lives in the injected dependencies; the
// gateway itself only holds per-connection identity.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/assistant"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/auth"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/build"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/contracts"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/sandbox"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/session"
	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/workspace"
)

var (
	logTag     = color.New(color.FgCyan).Sprint("[WS]")
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)
)

const minPasswordLen = 8

// Emitter sends one event frame back to the client. Implementations must be
// safe for concurrent use; handlers may emit from background goroutines.
type Emitter func(event string, data any)

type Config struct {
	// Project scopes images and containers; the filesystem workspace is
	// per user.
	Project       string
	MessageWindow time.Duration
	CommandWindow time.Duration
}

type Deps struct {
	Auth       auth.Store
	Workspaces *workspace.Manager
	Sessions   *session.Registry
	Dedup      *session.Deduper
	Builds     *build.Orchestrator
	Sandboxes  *sandbox.Controller
	Chat       *assistant.Client
	Analyzer   *assistant.Analyzer
	Contracts  *contracts.Manager
}

type Gateway struct {
	cfg Config
	d   Deps
}

func New(cfg Config, d Deps) *Gateway {
	if cfg.Project == "" {
		cfg.Project = "default"
	}
	return &Gateway{cfg: cfg, d: d}
}

// ConnState is the per-connection mutable state: the attached user, if any.
type ConnState struct {
	ID string

	mu   sync.Mutex
	user string
}

func NewConnState() *ConnState {
	return &ConnState{ID: uuid.NewString()}
}

func (s *ConnState) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *ConnState) setUser(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}

// Inbound payloads.

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userIDPayload struct {
	UserID string `json:"userId"`
}

type filePayload struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type commandPayload struct {
	Command string `json:"command"`
}

type messagePayload struct {
	Message string `json:"message"`
	// FromContractPage routes the conversation into a separate history so
	// contract questions do not pollute the CLI chat.
	FromContractPage bool `json:"isFromSmartContractPage"`
}

type contractPayload struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	Content string `json:"content"`
}

// Outbound payloads.

type terminalOutput struct {
	Output string `json:"output"`
}

type authResult struct {
	Username string `json:"username,omitempty"`
	Auto     bool   `json:"auto,omitempty"`
	Message  string `json:"message,omitempty"`
}

type fileListPayload struct {
	Files []string `json:"files"`
}

type fileContentPayload struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type fileEventPayload struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message,omitempty"`
}

type compileComplete struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type aiResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type testResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Report string `json:"report,omitempty"`
	Passed bool   `json:"passed,omitempty"`
}

type submitResult struct {
	Name     string             `json:"name"`
	Accepted bool               `json:"accepted"`
	Report   string             `json:"report,omitempty"`
	Message  string             `json:"message,omitempty"`
	Receipt  *contracts.Receipt `json:"receipt,omitempty"`
}

type contractListPayload struct {
	Contracts []string `json:"contracts"`
}

type contractContentPayload struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// HandleEvent routes one inbound frame. It never blocks on long work:
// builds, command execution and AI calls run in their own goroutines and
// report through the emitter.
func (g *Gateway) HandleEvent(ctx context.Context, st *ConnState, event string, raw json.RawMessage, emit Emitter) {
	switch event {
	case "login":
		g.handleLogin(st, raw, emit)
	case "register":
		g.handleRegister(st, raw, emit)
	case "auto-login":
		var p userIDPayload
		if g.decode(raw, &p, emit) {
			g.AutoLogin(st, p.UserID, emit)
		}
	case "set-user-id":
		g.handleSetUserID(st, raw, emit)
	case "logout":
		g.handleLogout(ctx, st, emit)
	case "get-file-list":
		g.handleFileList(st, emit)
	case "get-file-content":
		g.handleFileContent(st, raw, emit)
	case "save-file":
		g.handleSaveFile(st, raw, emit)
	case "create-file":
		g.handleCreateFile(st, raw, emit)
	case "reset-project":
		g.handleResetProject(st, emit)
	case "compile-docker":
		g.handleCompile(st, emit)
	case "run-command":
		g.handleRunCommand(ctx, st, raw, emit)
	case "ai-message":
		g.handleAIMessage(ctx, st, raw, emit)
	case "test-contract":
		g.handleTestContract(ctx, st, raw, emit)
	case "submit-contract":
		g.handleSubmitContract(ctx, st, raw, emit)
	case "reset-test-state":
		g.handleResetTestState(st, emit)
	case "get-example-contracts":
		g.handleExampleContracts(emit)
	case "load-example-contract":
		g.handleLoadExampleContract(raw, emit)
	case "get-user-contracts":
		g.handleUserContracts(st, emit)
	case "get-user-contract":
		g.handleUserContract(st, raw, emit)
	case "save-user-contract":
		g.handleSaveUserContract(st, raw, emit)
	case "create-user-contract":
		g.handleCreateUserContract(st, raw, emit)
	default:
		log.Printf("%s unknown event %q from %s", logTag, event, st.ID)
	}
}

func (g *Gateway) decode(raw json.RawMessage, v any, emit Emitter) bool {
	if len(raw) == 0 {
		emit("error", authResult{Message: "missing payload"})
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		emit("error", authResult{Message: "malformed payload"})
		return false
	}
	return true
}

func terminal(emit Emitter, line string) {
	emit("terminal-output", terminalOutput{Output: line})
}

// noisy emits a message that clients tend to trigger in rapid bursts,
// suppressing repeats inside the message window.
func (g *Gateway) noisy(st *ConnState, emit Emitter, line string) {
	if g.d.Dedup.ShouldSuppress("msg|"+st.ID+"|"+line, g.cfg.MessageWindow) {
		return
	}
	terminal(emit, line)
}

func (g *Gateway) requireUser(st *ConnState, emit Emitter, action string) (string, bool) {
	if user := st.User(); user != "" {
		return user, true
	}
	g.noisy(st, emit, "You must be logged in to "+action)
	return "", false
}

// attach binds the connection to a user and makes sure the workspace
// exists.
func (g *Gateway) attach(st *ConnState, user string) error {
	dir, err := g.d.Workspaces.Create(user)
	if err != nil {
		return err
	}
	g.d.Sessions.Put(user, session.Session{WorkspaceDir: dir})
	st.setUser(user)
	return nil
}

func (g *Gateway) handleLogin(st *ConnState, raw json.RawMessage, emit Emitter) {
	var p credentials
	if !g.decode(raw, &p, emit) {
		return
	}
	if p.Username == "" || p.Password == "" {
		emit("login-error", authResult{Message: "Username and password are required"})
		return
	}

	switch err := g.d.Auth.Verify(p.Username, p.Password); {
	case errors.Is(err, auth.ErrUserNotFound):
		emit("login-error", authResult{Message: "Invalid username or password"})
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		emit("login-error", authResult{Message: "Invalid password"})
		return
	case err != nil:
		log.Printf("%s login %s: %v", logTag, p.Username, err)
		emit("login-error", authResult{Message: "Login failed, try again"})
		return
	}

	if err := g.attach(st, p.Username); err != nil {
		log.Printf("%s workspace for %s: %v", logTag, p.Username, err)
		emit("login-error", authResult{Message: "Could not prepare your workspace"})
		return
	}
	log.Printf("%s %s logged in", logTag, p.Username)
	emit("login-success", authResult{Username: p.Username})
}

func (g *Gateway) handleRegister(st *ConnState, raw json.RawMessage, emit Emitter) {
	var p credentials
	if !g.decode(raw, &p, emit) {
		return
	}
	if !usernameRe.MatchString(p.Username) {
		emit("register-error", authResult{Message: "Username must be 3-32 characters: letters, digits, - or _"})
		return
	}
	if len(p.Password) < minPasswordLen {
		emit("register-error", authResult{Message: fmt.Sprintf("Password must be at least %d characters", minPasswordLen)})
		return
	}

	switch err := g.d.Auth.Create(p.Username, p.Password); {
	case errors.Is(err, auth.ErrUserAlreadyExists):
		emit("register-error", authResult{Message: "Username already taken"})
		return
	case err != nil:
		log.Printf("%s register %s: %v", logTag, p.Username, err)
		emit("register-error", authResult{Message: "Registration failed, try again"})
		return
	}

	if err := g.attach(st, p.Username); err != nil {
		log.Printf("%s workspace for %s: %v", logTag, p.Username, err)
		emit("register-error", authResult{Message: "Could not prepare your workspace"})
		return
	}
	log.Printf("%s %s registered", logTag, p.Username)
	emit("register-success", authResult{Username: p.Username})
	emit("login-success", authResult{Username: p.Username})
}

// AutoLogin restores a previously authenticated identity, typically from
// the browser cookie. No password is involved; possession of the cookie is
// the credential.
func (g *Gateway) AutoLogin(st *ConnState, userID string, emit Emitter) {
	if userID == "" {
		return
	}
	exists, err := g.d.Auth.Exists(userID)
	if err != nil {
		log.Printf("%s auto-login %s: %v", logTag, userID, err)
		emit("login-error", authResult{Message: "Login failed, try again"})
		return
	}
	if !exists {
		emit("login-error", authResult{Message: "Session expired, please log in again"})
		return
	}
	if err := g.attach(st, userID); err != nil {
		log.Printf("%s workspace for %s: %v", logTag, userID, err)
		emit("login-error", authResult{Message: "Could not prepare your workspace"})
		return
	}
	emit("login-success", authResult{Username: userID, Auto: true})
}

func (g *Gateway) handleSetUserID(st *ConnState, raw json.RawMessage, emit Emitter) {
	var p userIDPayload
	if !g.decode(raw, &p, emit) {
		return
	}
	exists, err := g.d.Auth.Exists(p.UserID)
	if err != nil || !exists {
		emit("login-error", authResult{Message: "Unknown user"})
		return
	}
	if err := g.attach(st, p.UserID); err != nil {
		emit("login-error", authResult{Message: "Could not prepare your workspace"})
		return
	}
	emit("user-id-set", authResult{Username: p.UserID})
}

func (g *Gateway) handleLogout(ctx context.Context, st *ConnState, emit Emitter) {
	user := st.User()
	if user == "" {
		emit("logout-success", authResult{})
		return
	}
	g.d.Sandboxes.StopUser(ctx, user)
	g.d.Analyzer.ResetUser(user)
	g.d.Chat.ClearHistory(user)
	g.d.Chat.ClearHistory(contractChatKey(user))
	g.d.Sessions.Forget(user)
	st.setUser("")
	log.Printf("%s %s logged out", logTag, user)
	emit("logout-success", authResult{Username: user})
}

func (g *Gateway) handleFileList(st *ConnState, emit Emitter) {
	files, err := g.d.Workspaces.ListFiles(st.User())
	if err != nil {
		emit("file-error", fileEventPayload{Message: "Could not list files"})
		return
	}
	emit("file-list", fileListPayload{Files: files})
}

func (g *Gateway) handleFileContent(st *ConnState, raw json.RawMessage, emit Emitter) {
	var p filePayload
	if !g.decode(raw, &p, emit) {
		return
	}
	content, err := g.d.Workspaces.ReadFile(st.User(), p.Path)
	if err != nil {
		emit("file-error", fileEventPayload{Path: p.Path, Message: readableFileError(err)})
		return
	}
	emit("file-content", fileContentPayload{Path: p.Path, Content: content})
}

func (g *Gateway) handleSaveFile(st *ConnState, raw json.RawMessage, emit Emitter) {
	user, ok := g.requireUser(st, emit, "save files")
	if !ok {
		return
	}
	var p filePayload
	if !g.decode(raw, &p, emit) {
		return
	}
	canonical, err := g.d.Workspaces.WriteFile(user, p.Path, p.Content)
	if err != nil {
		emit("file-error", fileEventPayload{Path: p.Path, Message: readableFileError(err)})
		return
	}
	emit("file-saved", fileEventPayload{Path: canonical})
}

func (g *Gateway) handleCreateFile(st *ConnState, raw json.RawMessage, emit Emitter) {
	user, ok := g.requireUser(st, emit, "create files")
	if !ok {
		return
	}
	var p filePayload
	if !g.decode(raw, &p, emit) {
		return
	}
	created, err := g.d.Workspaces.CreateFile(user, p.Path)
	if err != nil {
		emit("file-error", fileEventPayload{Path: p.Path, Message: readableFileError(err)})
		return
	}
	if created {
		emit("file-created", fileEventPayload{Path: p.Path})
		g.handleFileList(st, emit)
	} else {
		terminal(emit, "File already exists, opening it")
	}

	// The editor opens the file either way, empty when freshly created.
	content, err := g.d.Workspaces.ReadFile(user, p.Path)
	if err != nil {
		emit("file-error", fileEventPayload{Path: p.Path, Message: readableFileError(err)})
		return
	}
	emit("file-content", fileContentPayload{Path: p.Path, Content: content})
}

func (g *Gateway) handleResetProject(st *ConnState, emit Emitter) {
	user, ok := g.requireUser(st, emit, "reset the project")
	if !ok {
		return
	}
	files, err := g.d.Workspaces.Reset(user)
	if err != nil {
		emit("file-error", fileEventPayload{Message: "Could not reset the project"})
		return
	}
	emit("project-reset", fileEventPayload{})
	emit("file-list", fileListPayload{Files: files})
}

func readableFileError(err error) string {
	switch {
	case errors.Is(err, workspace.ErrPathTraversal):
		return "Invalid file path"
	case errors.Is(err, workspace.ErrNotFound):
		return "File not found"
	case errors.Is(err, workspace.ErrBadExtension):
		return "File type not allowed"
	default:
		return "File operation failed"
	}
}

func (g *Gateway) handleCompile(st *ConnState, emit Emitter) {
	user, ok := g.requireUser(st, emit, "compile")
	if !ok {
		return
	}
	if elapsed, running := g.d.Builds.Elapsed(user, g.cfg.Project); running {
		terminal(emit, fmt.Sprintf("A build is already in progress (%ds elapsed), please wait", int(elapsed.Seconds())))
		return
	}
	go g.runBuild(user, st, emit)
}

func (g *Gateway) runBuild(user string, st *ConnState, emit Emitter) {
	ctx := context.Background()
	sink := func(line string) { terminal(emit, line) }

	res, err := g.d.Builds.Start(ctx, user, g.cfg.Project, sink)
	if err != nil {
		if errors.Is(err, build.ErrBuildInProgress) {
			g.noisy(st, emit, "A build is already in progress, please wait")
			return
		}
		terminal(emit, "Build failed to start: "+err.Error())
		return
	}

	emit("compile-complete", compileComplete{Success: res.Success, Message: res.Message})
	if !res.Success {
		return
	}

	if err := g.startSandbox(ctx, user, emit); err != nil {
		terminal(emit, "Image built, but the sandbox did not start: "+err.Error())
		return
	}
	terminal(emit, "Sandbox ready. Type a command to run it inside the container.")
}

func (g *Gateway) startSandbox(ctx context.Context, user string, emit Emitter) error {
	image := g.d.Builds.ImageName(user, g.cfg.Project)
	notify := func(line string) { terminal(emit, line) }
	return g.d.Sandboxes.Start(ctx, user, g.cfg.Project, image, g.d.Workspaces.ProjectDir(user), notify)
}

func (g *Gateway) handleRunCommand(ctx context.Context, st *ConnState, raw json.RawMessage, emit Emitter) {
	user, ok := g.requireUser(st, emit, "run commands")
	if !ok {
		return
	}
	var p commandPayload
	if !g.decode(raw, &p, emit) {
		return
	}
	command := strings.TrimSpace(p.Command)
	if command == "" {
		return
	}

	// Double-submits of the same command are dropped without feedback.
	if g.d.Dedup.ShouldSuppress("cmd|"+user+"|"+command, g.cfg.CommandWindow) {
		return
	}

	// Rejection order matters: an in-flight build wins over a failed one,
	// and a failed build wins over never having built.
	if g.d.Builds.InProgress(user, g.cfg.Project) {
		g.noisy(st, emit, "Build in progress, please wait for it to finish")
		return
	}

	if !g.d.Sandboxes.Running(user, g.cfg.Project) {
		last, found, err := g.d.Builds.LastResult(ctx, user, g.cfg.Project)
		if err != nil {
			log.Printf("%s build record for %s: %v", logTag, user, err)
		}
		// An expired or never-started sandbox is reported, never revived
		// behind the user's back; compiling is the only way to get one.
		switch {
		case found && !last.Success:
			g.noisy(st, emit, "The last build failed. Fix the errors and compile again")
		case !found:
			g.noisy(st, emit, "No build found. Compile the project first")
		default:
			g.noisy(st, emit, "The sandbox is not running. Compile the project to start a new session")
		}
		return
	}

	go func() {
		err := g.d.Sandboxes.Exec(context.Background(), user, g.cfg.Project, command, func(line string) {
			terminal(emit, line)
		})
		if errors.Is(err, sandbox.ErrNoSandbox) {
			g.noisy(st, emit, "The sandbox is not running. Compile the project first")
			return
		}
		if err != nil {
			terminal(emit, "Command failed: "+err.Error())
		}
	}()
}

func (g *Gateway) handleAIMessage(ctx context.Context, st *ConnState, raw json.RawMessage, emit Emitter) {
	user, ok := g.requireUser(st, emit, "use the AI assistant")
	if !ok {
		return
	}
	var p messagePayload
	if !g.decode(raw, &p, emit) {
		return
	}
	message := strings.TrimSpace(p.Message)
	if message == "" {
		return
	}
	historyKey := user
	if p.FromContractPage {
		historyKey = contractChatKey(user)
	}

	emit("ai-response", aiResponse{Status: "thinking", Message: "AI is thinking..."})
	go func() {
		reply, err := g.d.Chat.Chat(context.Background(), historyKey, message)
		switch {
		case errors.Is(err, assistant.ErrDisabled):
			emit("ai-response", aiResponse{Status: "error", Error: "The AI assistant is not configured on this server."})
		case err != nil:
			log.Printf("%s ai-message for %s: %v", logTag, user, err)
			emit("ai-response", aiResponse{Status: "error", Error: "The AI assistant is unavailable right now."})
		default:
			emit("ai-response", aiResponse{Status: "complete", Message: reply})
		}
	}()
}

func (g *Gateway) handleTestContract(ctx context.Context, st *ConnState, raw json.RawMessage, emit Emitter) {
	user, ok := g.requireUser(st, emit, "test contracts")
	if !ok {
		return
	}
	var p contractPayload
	if !g.decode(raw, &p, emit) {
		return
	}
	if p.Name == "" || p.Code == "" {
		emit("test-result", testResult{Name: p.Name, Status: "error", Report: "Contract name and code are required"})
		return
	}

	verdict, elapsed := g.d.Analyzer.Admit(user, p.Name)
	switch verdict {
	case assistant.AdmissionDropSilent:
		return
	case assistant.AdmissionBusy:
		emit("test-result", testResult{
			Name:   p.Name,
			Status: "busy",
			Report: fmt.Sprintf("Analysis of %s is already running (%ds elapsed)", p.Name, int(elapsed.Seconds())),
		})
		return
	}

	emit("analyzing-contract", contractContentPayload{Name: p.Name})
	go func() {
		defer g.d.Analyzer.Finish(user, p.Name)
		report, findings, err := g.d.Analyzer.Analyze(context.Background(), p.Code)
		if err != nil {
			log.Printf("%s analyze %s for %s: %v", logTag, p.Name, user, err)
			emit("test-result", testResult{Name: p.Name, Status: "error", Report: "Analysis failed, try again"})
			return
		}
		emit("test-result", testResult{
			Name:   p.Name,
			Status: "complete",
			Report: report,
			Passed: !assistant.HasErrors(findings),
		})
	}()
}

func (g *Gateway) handleSubmitContract(ctx context.Context, st *ConnState, raw json.RawMessage, emit Emitter) {
	user, ok := g.requireUser(st, emit, "submit contracts")
	if !ok {
		return
	}
	var p contractPayload
	if !g.decode(raw, &p, emit) {
		return
	}
	if p.Name == "" || p.Code == "" {
		emit("submit-result", submitResult{Name: p.Name, Message: "Contract name and code are required"})
		return
	}

	go func() {
		report, findings, err := g.d.Analyzer.Analyze(context.Background(), p.Code)
		if err != nil {
			log.Printf("%s submit analyze %s for %s: %v", logTag, p.Name, user, err)
			emit("submit-result", submitResult{Name: p.Name, Message: "Analysis failed, try again"})
			return
		}
		if assistant.HasErrors(findings) {
			emit("submit-result", submitResult{Name: p.Name, Report: report, Message: "Fix the errors before submitting"})
			return
		}

		receipt, err := g.d.Contracts.SaveSubmission(user, p.Name, p.Code)
		if err != nil {
			log.Printf("%s submission %s for %s: %v", logTag, p.Name, user, err)
			emit("submit-result", submitResult{Name: p.Name, Report: report, Message: "Could not record the submission"})
			return
		}
		emit("submit-result", submitResult{Name: p.Name, Accepted: true, Report: report, Receipt: &receipt})
	}()
}

func (g *Gateway) handleResetTestState(st *ConnState, emit Emitter) {
	user, ok := g.requireUser(st, emit, "reset the test state")
	if !ok {
		return
	}
	cleared := g.d.Analyzer.ResetUser(user)
	emit("test-state-reset", map[string]int{"cleared": cleared})
}

func (g *Gateway) handleExampleContracts(emit Emitter) {
	set, err := g.d.Contracts.ListExamples()
	if err != nil {
		emit("file-error", fileEventPayload{Message: "Could not list example contracts"})
		return
	}
	emit("example-contracts", set)
}

func (g *Gateway) handleLoadExampleContract(raw json.RawMessage, emit Emitter) {
	var p contractPayload
	if !g.decode(raw, &p, emit) {
		return
	}
	content, err := g.d.Contracts.ReadExample(p.Name)
	if err != nil {
		emit("file-error", fileEventPayload{Path: p.Name, Message: readableContractError(err)})
		return
	}
	emit("example-contract", contractContentPayload{Name: p.Name, Content: content})
}

func (g *Gateway) handleUserContracts(st *ConnState, emit Emitter) {
	user, ok := g.requireUser(st, emit, "view your contracts")
	if !ok {
		return
	}
	names, err := g.d.Contracts.ListUserContracts(user)
	if err != nil {
		emit("file-error", fileEventPayload{Message: "Could not list your contracts"})
		return
	}
	emit("user-contracts", contractListPayload{Contracts: names})
}

func (g *Gateway) handleUserContract(st *ConnState, raw json.RawMessage, emit Emitter) {
	user, ok := g.requireUser(st, emit, "view your contracts")
	if !ok {
		return
	}
	var p contractPayload
	if !g.decode(raw, &p, emit) {
		return
	}
	content, err := g.d.Contracts.ReadUserContract(user, p.Name)
	if err != nil {
		emit("file-error", fileEventPayload{Path: p.Name, Message: readableContractError(err)})
		return
	}
	emit("user-contract", contractContentPayload{Name: p.Name, Content: content})
}

func (g *Gateway) handleSaveUserContract(st *ConnState, raw json.RawMessage, emit Emitter) {
	user, ok := g.requireUser(st, emit, "save contracts")
	if !ok {
		return
	}
	var p contractPayload
	if !g.decode(raw, &p, emit) {
		return
	}
	content := p.Content
	if content == "" {
		content = p.Code
	}
	name, err := g.d.Contracts.SaveUserContract(user, p.Name, content)
	if err != nil {
		emit("file-error", fileEventPayload{Path: p.Name, Message: readableContractError(err)})
		return
	}
	emit("user-contract-saved", contractContentPayload{Name: name})
}

func (g *Gateway) handleCreateUserContract(st *ConnState, raw json.RawMessage, emit Emitter) {
	user, ok := g.requireUser(st, emit, "create contracts")
	if !ok {
		return
	}
	var p contractPayload
	if !g.decode(raw, &p, emit) {
		return
	}
	name, err := g.d.Contracts.CreateUserContract(user, p.Name)
	if err != nil {
		emit("file-error", fileEventPayload{Path: p.Name, Message: readableContractError(err)})
		return
	}
	emit("user-contract-created", contractContentPayload{Name: name})
	g.handleUserContracts(st, emit)
}

func contractChatKey(user string) string {
	return user + "|contracts"
}

func readableContractError(err error) string {
	switch {
	case errors.Is(err, contracts.ErrNotFound):
		return "Contract not found"
	case errors.Is(err, contracts.ErrBadName):
		return "Invalid contract name"
	case errors.Is(err, contracts.ErrExists):
		return "Contract already exists"
	default:
		return "Contract operation failed"
	}
}
