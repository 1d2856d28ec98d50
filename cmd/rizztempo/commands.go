package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rizztempo/rizztempo/internal/account"
	"github.com/rizztempo/rizztempo/internal/app"
	"github.com/rizztempo/rizztempo/internal/insights"
	"github.com/rizztempo/rizztempo/internal/model"
)

func runFingerprint(ctx context.Context, core *app.Core, args []string) error {
	fs := newFlagSet("fingerprint")
	reset := fs.Bool("clear", false, "forget the stored fingerprint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *reset {
		if err := core.Fingerprint.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("fingerprint cleared")
		return nil
	}
	fmt.Println(core.Fingerprint.Fingerprint(ctx))
	return nil
}

func runSignUp(ctx context.Context, core *app.Core, args []string) error {
	fs := newFlagSet("signup")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (or RIZZTEMPO_PASSWORD)")
	phone := fs.String("phone", "", "phone number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	outcome, err := core.Accounts.SignUp(ctx, account.SignUpRequest{
		Email:    *email,
		Password: stringFromEnv("RIZZTEMPO_PASSWORD", *password),
		Phone:    *phone,
	})
	if err != nil {
		return err
	}
	if outcome.Pending {
		fmt.Printf("account %s created; confirm your email, then run 'rizztempo signin'\n", outcome.User.Email)
		return nil
	}
	printOutcome(outcome)
	return nil
}

func runSignIn(ctx context.Context, core *app.Core, args []string) error {
	fs := newFlagSet("signin")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (or RIZZTEMPO_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	outcome, err := core.Accounts.SignIn(ctx, account.SignInRequest{
		Email:    *email,
		Password: stringFromEnv("RIZZTEMPO_PASSWORD", *password),
	})
	if err != nil {
		return err
	}
	printOutcome(outcome)
	return nil
}

func printOutcome(o account.Outcome) {
	fmt.Printf("signed in as %s (%s)\n", o.User.Email, o.User.ID)
	if o.NewProfile {
		fmt.Println("profile created")
	}
	if o.BonusGranted {
		fmt.Println("registration bonus granted")
	}
	if o.ProvisionError != "" {
		fmt.Fprintf(os.Stderr, "warning: account setup incomplete: %s\n", o.ProvisionError)
	}
}

func runSignOut(ctx context.Context, core *app.Core, _ []string) error {
	if err := core.Accounts.SignOut(ctx); err != nil {
		return err
	}
	fmt.Println("signed out")
	return nil
}

func runBalance(ctx context.Context, core *app.Core, _ []string) error {
	tokens := core.State.Tokens
	if err := tokens.Refetch(ctx); err != nil {
		return err
	}
	b := tokens.Value()
	fmt.Printf("permanent:  %.2f\nresettable: %.2f\ntotal:      %.2f\n", b.Permanent, b.Resettable, b.Total())
	return nil
}

func runScenarios(ctx context.Context, core *app.Core, _ []string) error {
	if err := core.State.Scenarios.Refetch(ctx); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tDIFFICULTY\tCATEGORY\tDESCRIPTION")
	for _, sc := range core.State.Scenarios.Value() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", sc.Title, sc.Difficulty, sc.Category, sc.Description)
	}
	return tw.Flush()
}

func runPlans(_ context.Context, core *app.Core, _ []string) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tTOKENS\tPERIOD\t")
	for _, p := range core.Plans {
		mark := ""
		if p.Popular {
			mark = "popular"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", p.ID, p.Name, p.Price, p.Tokens, p.Period, mark)
	}
	return tw.Flush()
}

func runChallenge(ctx context.Context, core *app.Core, _ []string) error {
	ch := core.State.Challenge
	if err := ch.Refetch(ctx); err != nil {
		return err
	}
	status := ch.Value()
	if status.Challenge == nil {
		fmt.Printf("no challenge for %s\n", ch.Today())
		return nil
	}
	c := status.Challenge
	fmt.Printf("%s  %s\n", ch.Today(), c.Title)
	if c.Description != "" {
		fmt.Println(c.Description)
	}
	if c.BonusTokens > 0 {
		fmt.Printf("bonus: %d tokens\n", c.BonusTokens)
	}
	fmt.Printf("streak: %d (longest %d)\n", status.Streak.CurrentStreak, status.Streak.LongestStreak)
	if _, err := ch.CanStart(); err != nil {
		fmt.Printf("status: %v\n", err)
	} else {
		fmt.Println("status: ready (rizztempo practice --challenge)")
	}
	return nil
}

func runSubscribe(ctx context.Context, core *app.Core, args []string) error {
	fs := newFlagSet("subscribe")
	planID := fs.String("plan", "", "plan id")
	stripeSub := fs.String("stripe-subscription", "", "payment provider subscription id")
	stripeCustomer := fs.String("stripe-customer", "", "payment provider customer id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	plan, ok := model.FindPlan(core.Plans, *planID)
	if !ok {
		return fmt.Errorf("unknown plan %q (see 'rizztempo plans')", *planID)
	}
	if _, err := core.State.Subscription.Activate(ctx, plan.ID, *stripeSub, *stripeCustomer); err != nil {
		return err
	}
	fmt.Printf("subscribed to %s (%s, %d tokens per %s)\n", plan.Name, plan.Price, plan.Tokens, plan.Period)
	return nil
}

func runCancelSubscription(ctx context.Context, core *app.Core, _ []string) error {
	sub := core.State.Subscription
	if err := sub.Refetch(ctx); err != nil {
		return err
	}
	if err := sub.Cancel(ctx); err != nil {
		return err
	}
	fmt.Println("subscription cancelled")
	return nil
}

func runPurchase(ctx context.Context, core *app.Core, args []string) error {
	fs := newFlagSet("purchase")
	amount := fs.Int("amount", 0, "tokens purchased")
	payment := fs.String("payment", "", "payment id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *amount <= 0 {
		return errors.New("--amount must be positive")
	}
	if strings.TrimSpace(*payment) == "" {
		return errors.New("--payment is required")
	}
	if _, err := core.State.Tokens.Purchase(ctx, *amount, *payment); err != nil {
		return err
	}
	fmt.Printf("purchased %d tokens; balance %.2f\n", *amount, core.State.Tokens.Value().Total())
	return nil
}

func runOnboard(ctx context.Context, core *app.Core, args []string) error {
	fs := newFlagSet("onboard")
	level := fs.String("level", "", "beginner, intermediate or advanced")
	goals := fs.String("goals", "", "comma separated: casual,serious,confidence,social")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var list []string
	for _, g := range strings.Split(*goals, ",") {
		if g = strings.TrimSpace(g); g != "" {
			list = append(list, g)
		}
	}
	profile, err := core.Accounts.CompleteOnboarding(ctx, account.Onboarding{ExperienceLevel: *level, DatingGoals: list})
	if err != nil {
		return err
	}
	fmt.Printf("onboarding complete for %s\n", profile.ID)
	return nil
}

func runStats(ctx context.Context, core *app.Core, args []string) error {
	fs := newFlagSet("stats")
	days := fs.Int("days", insights.DefaultWindow, "days in the progress series")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := core.State.Sessions.Refetch(ctx); err != nil {
		return err
	}
	sum := insights.Summarize(core.State.Sessions.Value(), time.Now(), *days)
	fmt.Printf("sessions: %d  total: %s  mean: %.0fs  median: %.0fs\n",
		sum.Sessions, formatSeconds(sum.TotalSeconds), sum.MeanSeconds, sum.MedianSeconds)
	if sum.MeanConfidence != nil {
		fmt.Printf("confidence: %.1f over %d rated sessions\n", *sum.MeanConfidence, sum.Rated)
	}
	if sum.ConfidenceTrend != nil {
		fmt.Printf("trend: %+.2f per session\n", *sum.ConfidenceTrend)
	}
	if sum.FavouriteScenario != "" {
		fmt.Printf("favourite: %s\n", sum.FavouriteScenario)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSESSIONS\tTIME\tCONFIDENCE")
	for _, d := range sum.Series {
		conf := "-"
		if d.MeanConfidence != nil {
			conf = fmt.Sprintf("%.1f", *d.MeanConfidence)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", d.Date, d.Sessions, formatSeconds(d.Seconds), conf)
	}
	return tw.Flush()
}

func runJournal(ctx context.Context, core *app.Core, args []string) error {
	fs := newFlagSet("journal")
	limit := fs.Int("limit", 20, "entries to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	journal, err := core.OpenJournal()
	if err != nil {
		return err
	}
	uid := core.Auth.UserID()
	entries, err := journal.ListRecent(ctx, uid, *limit)
	if err != nil {
		return err
	}
	summary, err := journal.Summary(ctx, uid)
	if err != nil {
		return err
	}
	fmt.Printf("sessions: %d  debited: %d  failed: %d  unbilled: %s\n",
		summary.Sessions, summary.Debited, summary.Failed, formatSeconds(int(summary.UnbilledSeconds)))
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDED\tSCENARIO\tOUTCOME\tSECONDS\tTOKENS\tMEMO")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%.2f\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Scenario, e.Outcome, e.ElapsedSeconds, e.EstimatedTokens, e.Memo)
	}
	return tw.Flush()
}

func formatSeconds(total int) string {
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", total/3600, total/60%60, total%60)
}
