package website

import (
	_ "embed"
	"math/big"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/din-network/din-monitor/pkg/bus"
	"github.com/din-network/din-monitor/pkg/reporter"
	"github.com/din-network/din-monitor/pkg/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	// Printer for pretty printing numbers
	printer = message.NewPrinter(language.English)

	// Caser is used for casing strings
	caser = cases.Title(language.English)
)

type StatusHTMLData struct { //nolint:musttag
	Network  string
	MinStake string

	Status           *types.Status
	OperatorsReport  []*reporter.OperatorReport
	ViolationStats   *reporter.ViolationStats
	ViolationsByType []ViolationCount
	BusStats         bus.Stats

	ShowConfigDetails bool
	LinkMonitorAPI    string

	UpdatedAt string
}

type ViolationCount struct {
	Kind  string
	Count uint64
}

// toUnits renders an amount in the smallest unit as whole currency units.
func toUnits(amount types.Amount) string {
	return weiBigIntToEthBigFloat(amount.ToBig()).Text('f', 4)
}

func weiBigIntToEthBigFloat(wei *big.Int) (ethValue *big.Float) {
	// wei / 10^18
	fbalance := new(big.Float)
	fbalance.SetString(wei.String())
	ethValue = new(big.Float).Quo(fbalance, big.NewFloat(1e18))
	return
}

func prettyInt(i uint64) string {
	return printer.Sprintf("%d", i)
}

func prettyScore(f float64) string {
	return printer.Sprintf("%.1f", f)
}

func caseIt(s string) string {
	return caser.String(s)
}

func truncate(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

var funcMap = template.FuncMap{
	"toUnits":     toUnits,
	"prettyInt":   prettyInt,
	"prettyScore": prettyScore,
	"caseIt":      caseIt,
	"truncate":    truncate,
}

//go:embed website.html
var htmlContent string

func ParseIndexTemplate() (*template.Template, error) {
	return template.New("index").Funcs(funcMap).Funcs(sprig.FuncMap()).Parse(htmlContent)
}
