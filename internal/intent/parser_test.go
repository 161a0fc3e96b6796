package intent

import (
	stdErrors "errors"
	"testing"

	xerrors "github.com/NectaFi/necta-agents/internal/errors"
)

func TestParseRecognisedIntents(t *testing.T) {
	cases := []struct {
		text string
		want ParsedIntent
	}{
		{
			text: "Deposit 100 USDC into Aave",
			want: ParsedIntent{Type: ActionDeposit, Amount: "100", SourceToken: "USDC", Target: "Aave"},
		},
		{
			text: "withdraw 0.5 usdc from compound",
			want: ParsedIntent{Type: ActionWithdraw, Amount: "0.5", SourceToken: "USDC", Target: "compound"},
		},
		{
			text: "Swap 25 USDC for WETH",
			want: ParsedIntent{Type: ActionSwap, Amount: "25", SourceToken: "USDC", Target: "WETH"},
		},
		{
			text: "Deposit 42 DAI",
			want: ParsedIntent{Type: ActionDeposit, Amount: "42", SourceToken: "DAI"},
		},
		{
			text: "  SWAP 7.25 usdc.e for weth  ",
			want: ParsedIntent{Type: ActionSwap, Amount: "7.25", SourceToken: "USDC.E", Target: "weth"},
		},
	}

	for _, tc := range cases {
		got, err := Parse(tc.text)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.text, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q: got %+v, want %+v", tc.text, got, tc.want)
		}
	}
}

func TestParseRejectsMalformedText(t *testing.T) {
	cases := []string{
		"",
		"Stake 100 USDC into Aave",
		"Deposit USDC into Aave",
		"Deposit into Aave",
		"100 USDC into Aave",
	}

	for _, text := range cases {
		if _, err := Parse(text); err == nil {
			t.Fatalf("expected parse failure for %q", text)
		} else if !stdErrors.Is(err, xerrors.New(xerrors.CodeParseFailed, "")) {
			t.Fatalf("expected PARSE_FAILED for %q, got %v", text, err)
		}
	}
}

func TestParseNeverInventsAmounts(t *testing.T) {
	// 金额缺失时必须报错，绝不能回退成默认值。
	got, err := Parse("Deposit some USDC into Aave")
	if err == nil {
		t.Fatalf("expected failure, got %+v", got)
	}
}
