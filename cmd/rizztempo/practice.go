package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rizztempo/rizztempo/internal/app"
	"github.com/rizztempo/rizztempo/internal/logging"
	"github.com/rizztempo/rizztempo/internal/model"
	"github.com/rizztempo/rizztempo/internal/practice"
	"github.com/rizztempo/rizztempo/internal/voice"
)

const practiceHelp = `commands: p pause | r resume | e end | s status | m mute | l like | d dislike | t <text> | ? help`

func runPractice(ctx context.Context, core *app.Core, args []string) error {
	fs := newFlagSet("practice")
	scenario := fs.String("scenario", "", "scenario title or id")
	challenge := fs.Bool("challenge", false, "practice today's daily challenge")
	withVoice := fs.Bool("voice", false, "connect the voice agent")
	if err := fs.Parse(args); err != nil {
		return err
	}
	st := core.State
	if err := st.Tokens.Refetch(ctx); err != nil {
		return err
	}
	label, tags, err := practiceLabel(ctx, core, *scenario, *challenge)
	if err != nil {
		return err
	}

	journal, err := core.OpenJournal()
	if err != nil {
		core.Logger.Printf("journal unavailable: %v", err)
	}
	cfg := core.Policy()
	cfg.Scenario = label
	cfg.UserID = core.Auth.UserID()
	cfg.Tags = tags
	deps := practice.Deps{
		Balance:  st.Tokens,
		Debiter:  st.Tokens,
		Recorder: st.Sessions,
		Events:   core.Events,
		Logger:   logging.New(core.LogOutput, "practice", core.Config.Environment, core.Config.LogLevel),
	}
	if journal != nil {
		deps.Journal = journal
	}
	session, err := practice.NewSession(cfg, deps)
	if err != nil {
		return err
	}
	if err := session.Start(); err != nil {
		return err
	}
	fmt.Printf("practising %q with %.2f tokens available\n%s\n", label, st.Tokens.Value().Total(), practiceHelp)

	var conv voice.Conversation
	var transcript *voice.Transcript
	if *withVoice {
		conv, transcript, err = startVoice(ctx, core, label)
		if err != nil {
			fmt.Fprintf(os.Stderr, "voice unavailable: %v\n", err)
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			cmd, rest, _ := strings.Cut(line, " ")
			switch cmd {
			case "":
			case "p", "pause":
				report(session.Pause(), session)
			case "r", "resume":
				report(session.Resume(), session)
			case "s", "status":
				report(nil, session)
			case "e", "end", "q", "quit":
				break loop
			case "m", "mute":
				if transcript == nil {
					fmt.Println("voice not connected")
					continue
				}
				fmt.Printf("muted: %t\n", transcript.ToggleMute())
			case "l", "like", "d", "dislike":
				sendFeedback(conv, cmd == "l" || cmd == "like")
			case "t", "text":
				sendText(conv, rest)
			case "?", "h", "help":
				fmt.Println(practiceHelp)
			default:
				fmt.Printf("unknown command %q\n%s\n", cmd, practiceHelp)
			}
		}
	}

	// Settle with a fresh context so an interrupt still bills the session.
	endCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if conv != nil && conv.Status() != voice.StatusDisconnected {
		if err := conv.EndSession(endCtx); err != nil {
			core.Logger.Printf("end voice session: %v", err)
		}
	}
	res, err := session.End(endCtx)
	fmt.Printf("session ended after %s, about %.2f tokens (%s)\n",
		practice.FormatElapsed(res.ElapsedSeconds), res.EstimatedTokens, res.Outcome)
	if err != nil {
		return err
	}
	if res.Session == nil {
		return nil
	}
	fmt.Printf("saved session %s\nconfidence 1-10 and optional notes (empty to skip): ", res.Session.ID)
	select {
	case <-ctx.Done():
	case line, ok := <-lines:
		if ok && line != "" {
			return rate(endCtx, core, res.Session.ID, line)
		}
	}
	fmt.Println()
	return nil
}

func rate(ctx context.Context, core *app.Core, sessionID, line string) error {
	scoreText, notes, _ := strings.Cut(line, " ")
	score, err := strconv.Atoi(scoreText)
	if err != nil {
		return fmt.Errorf("invalid confidence %q", scoreText)
	}
	fb := model.SessionFeedback{ConfidenceScore: score, Feedback: strings.TrimSpace(notes)}
	if err := fb.Validate(); err != nil {
		return err
	}
	if _, err := core.State.Sessions.AttachFeedback(ctx, sessionID, fb); err != nil {
		return err
	}
	fmt.Println("feedback saved")
	return nil
}

func practiceLabel(ctx context.Context, core *app.Core, key string, challenge bool) (string, []string, error) {
	if challenge {
		ch := core.State.Challenge
		if err := ch.Refetch(ctx); err != nil {
			return "", nil, err
		}
		c, err := ch.CanStart()
		if err != nil {
			return "", nil, err
		}
		return firstNonEmpty(c.ScenarioType, c.Title), []string{"daily_challenge"}, nil
	}
	if strings.TrimSpace(key) == "" {
		return "", nil, errors.New("--scenario or --challenge is required")
	}
	sc := core.State.Scenarios
	if err := sc.Refetch(ctx); err != nil {
		return "", nil, err
	}
	found, ok := sc.Find(key)
	if !ok {
		return "", nil, fmt.Errorf("unknown scenario %q (see 'rizztempo scenarios')", key)
	}
	return found.Title, nil, nil
}

func report(err error, s *practice.Session) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	snap := s.Snapshot()
	fmt.Printf("[%s] %s  ~%.2f tokens\n", snap.State, snap.Display, snap.EstimatedTokens)
}

func startVoice(ctx context.Context, core *app.Core, scenario string) (voice.Conversation, *voice.Transcript, error) {
	cfg := core.Config
	if strings.TrimSpace(cfg.VoiceAgentID) == "" {
		return nil, nil, errors.New("voice_agent_id is not configured")
	}
	tr := voice.NewTranscript(cfg.PartnerName)
	fmt.Printf("%s: %s\n", tr.Partner(), voice.Greeting)
	client := voice.NewClient(cfg.VoiceURL, cfg.VoiceAPIKey, tr.Bind(voice.Callbacks{
		OnConnect:        func(string) { fmt.Printf("%s: %s\n", tr.Partner(), voice.ConnectGreeting) },
		OnUserTranscript: func(text string) { fmt.Printf("%s: %s\n", voice.UserSpeaker, text) },
		OnAgentResponse:  func(text string) { fmt.Printf("%s: %s\n", tr.Partner(), text) },
		OnDisconnect:     func() { fmt.Println("voice disconnected") },
		OnError:          func(err error) { fmt.Fprintf(os.Stderr, "voice: %v\n", err) },
	}))
	client.SetLogger(logging.New(core.LogOutput, "voice", cfg.Environment, cfg.LogLevel))
	vars := map[string]any{"partner_name": tr.Partner(), "scenario": scenario}
	if err := core.State.Profile.Refetch(ctx); err == nil {
		if p := core.State.Profile.Value(); p != nil && p.ExperienceLevel != nil {
			vars["experience_level"] = *p.ExperienceLevel
		}
	}
	if err := client.StartSession(ctx, cfg.VoiceAgentID, vars); err != nil {
		return nil, nil, err
	}
	return client, tr, nil
}

func sendFeedback(conv voice.Conversation, like bool) {
	if conv == nil {
		fmt.Println("voice not connected")
		return
	}
	fb, ok := voice.FeedbackSenderOf(conv)
	if !ok {
		fmt.Println("feedback is not available right now")
		return
	}
	if err := fb.SendFeedback(like); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("feedback sent")
}

func sendText(conv voice.Conversation, text string) {
	if conv == nil {
		fmt.Println("voice not connected")
		return
	}
	ts, ok := voice.TextSenderOf(conv)
	if !ok {
		fmt.Println("text turns are not supported")
		return
	}
	if strings.TrimSpace(text) == "" {
		fmt.Println("usage: t <text>")
		return
	}
	if err := ts.SendText(text); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
