// Command snapshot prints the current indicator and regime state for
// each configured ticker as a table. With -send the same summary also
// goes through the notification stack.
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"

	"regime-monitor/config"
	"regime-monitor/internal/indicator"
	"regime-monitor/internal/logging"
	"regime-monitor/internal/marketdata/yahoo"
	"regime-monitor/internal/model"
	"regime-monitor/internal/notify"
	"regime-monitor/internal/regime"
	"regime-monitor/internal/strategy"
)

func main() {
	tickersFlag := flag.String("tickers", "", "comma-separated symbols overriding TICKERS")
	sendFlag := flag.Bool("send", false, "deliver the summary through the notifier")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("snapshot: %v", err)
	}
	logger := logging.Setup(cfg.Logging())

	if !run(cfg, logger, *tickersFlag, *sendFlag) {
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger zerolog.Logger, tickersArg string, send bool) bool {
	log := logging.Component(logger, "snapshot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tickers := cfg.Tickers
	if tickersArg != "" {
		tickers = nil
		for _, p := range strings.Split(tickersArg, ",") {
			if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
				tickers = append(tickers, p)
			}
		}
	}
	if len(tickers) == 0 {
		log.Error().Msg("no tickers to snapshot")
		return false
	}

	provider := yahoo.New(logging.Component(logger, "yahoo"))
	provider.BaseURL = cfg.YahooBaseURL
	eval := strategy.NewEvaluator(cfg.Strategy())
	ind := cfg.Indicators()

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("REGIME SNAPSHOT")
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{
		"TICKER", "TF", "LAST CLOSE TS", "CLOSE",
		fmt.Sprintf("EMA%d", ind.EMAFast),
		fmt.Sprintf("EMA%d", ind.EMASlow),
		fmt.Sprintf("EMA%d", ind.EMATrend),
		"GAP",
		fmt.Sprintf("RSI%d", ind.RSI),
		fmt.Sprintf("ATR%d", ind.ATR),
		"REGIME", "RAW",
	})

	var sumLines []string
	failed := 0

	for i, ticker := range tickers {
		slowSnaps, err := fetchSnaps(ctx, provider, ticker, cfg.RegimeInterval, cfg.LookbackRegime, ind)
		if err != nil {
			log.Error().Err(err).Str("ticker", ticker).Msg("slow timeframe failed")
			failed++
			continue
		}
		fastSnaps, err := fetchSnaps(ctx, provider, ticker, cfg.ExecInterval, cfg.LookbackExec, ind)
		if err != nil {
			log.Error().Err(err).Str("ticker", ticker).Msg("fast timeframe failed")
			failed++
			continue
		}
		if len(slowSnaps) == 0 || len(fastSnaps) == 0 {
			log.Error().Str("ticker", ticker).Msg("no closed candles")
			failed++
			continue
		}

		reg := regime.Latest(slowSnaps)
		slow := slowSnaps[len(slowSnaps)-1]
		fast := fastSnaps[len(fastSnaps)-1]

		raw := "-"
		if eval.Raw(fast, model.Buy) {
			raw = "bull"
		} else if eval.Raw(fast, model.Sell) {
			raw = "bear"
		}

		if i > 0 {
			tw.AppendSeparator()
		}
		tw.AppendRow(snapRow(ticker, cfg.RegimeInterval, slow, reg.String(), "-"))
		tw.AppendRow(snapRow(ticker, cfg.ExecInterval, fast, "-", raw))

		sumLines = append(sumLines, fmt.Sprintf("- %s: regime=%s close=%.2f gap=%s rsi=%s raw=%s",
			ticker, reg, fast.Close, fmtField(fast.Gap), fmtField(fast.RSI), raw))
	}

	if len(sumLines) > 0 {
		tw.Render()
	}

	if send && len(sumLines) > 0 {
		sink := notify.Stack(cfg.NotifyStack(), logger)
		err := sink.Send(ctx, notify.Alert{
			Level:   notify.LevelInfo,
			Title:   fmt.Sprintf("[Snapshot] %s", strings.Join(tickers, " ")),
			Message: strings.Join(sumLines, "\n"),
		})
		if err != nil {
			log.Error().Err(err).Msg("snapshot delivery failed")
			return false
		}
		log.Info().Msg("snapshot delivered")
	}

	return failed == 0
}

func fetchSnaps(ctx context.Context, p *yahoo.Client, ticker string, iv model.Interval, days int, cfg indicator.Config) ([]indicator.Snapshot, error) {
	batch, err := p.Candles(ctx, ticker, iv, days)
	if err != nil {
		return nil, err
	}
	return indicator.Compute(model.Closed(batch), cfg), nil
}

func snapRow(ticker string, iv model.Interval, s indicator.Snapshot, reg, raw string) table.Row {
	return table.Row{
		ticker, iv.String(), s.TS.Format("01-02 15:04"), fmt.Sprintf("%.2f", s.Close),
		fmtField(s.EMAFast), fmtField(s.EMASlow), fmtField(s.EMATrend),
		fmtField(s.Gap), fmtField(s.RSI), fmtField(s.ATR),
		reg, raw,
	}
}

// fmtField renders an indicator value, or "-" while its window has not
// filled.
func fmtField(f indicator.Field) string {
	if !f.OK {
		return "-"
	}
	return fmt.Sprintf("%.4f", f.V)
}
