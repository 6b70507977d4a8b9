package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/banshee-data/freed-tools/internal/freed"
)

// selfTest is one fixture in the built-in validation suite.
type selfTest struct {
	name      string
	packet    *freed.Builder
	wantValid bool
	// truncate shortens the encoded packet when non-zero.
	truncate int
}

type selfTestResult struct {
	name    string
	passed  bool
	details string
}

func selfTests() []selfTest {
	return []selfTest{
		{name: "Standard Valid Packet", packet: freed.NewBuilder(), wantValid: true},
		{name: "Invalid Packet ID", packet: freed.NewBuilder().WithID(0x45)},
		{name: "Invalid Packet Type", packet: freed.NewBuilder().WithType(0x02)},
		{
			name: "Extreme Values",
			packet: freed.NewBuilder().
				WithX(99999.9).WithY(-99999.9).
				WithPan(179.9).WithTilt(-89.9),
			wantValid: true,
		},
		{
			name: "Zero Values",
			packet: freed.NewBuilder().
				WithPosition(0, 0, 0).
				WithRotation(0, 0, 0),
			wantValid: true,
		},
		{name: "Without Lens Data", packet: freed.NewBuilder().WithoutLens(), wantValid: true},
		{name: "Truncated Header", packet: freed.NewBuilder(), truncate: 20},
		{name: "Truncated Lens Data", packet: freed.NewBuilder(), truncate: freed.LensThreshold},
	}
}

func (a *app) cmdSelftest(args []string) error {
	cf := a.newFlags("selftest", "selftest")
	if _, _, err := cf.parse(args); err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, a.paint(ansiYellow, "=== FreeD Protocol Validation Test Suite ==="))

	var results []selfTestResult
	for _, tc := range selfTests() {
		results = append(results, a.runSelfTest(tc))
	}

	fmt.Fprintln(a.stdout)
	fmt.Fprintln(a.stdout, a.paint(ansiYellow, "=== Test Summary ==="))
	passed := 0
	for _, r := range results {
		if r.passed {
			passed++
		}
	}
	failed := len(results) - passed
	fmt.Fprintf(a.stdout, "\nTotal Tests: %d\n", len(results))
	fmt.Fprintf(a.stdout, "Passed: %s\n", a.paint(ansiGreen, fmt.Sprint(passed)))
	fmt.Fprintf(a.stdout, "Failed: %s\n", a.paint(ansiRed, fmt.Sprint(failed)))

	if failed == 0 {
		fmt.Fprintln(a.stdout, "\n"+a.paint(ansiGreen, "All tests passed!"))
		return nil
	}
	fmt.Fprintln(a.stdout, "\n"+a.paint(ansiRed, "Some tests failed. Check details above."))
	fmt.Fprintln(a.stdout, "\nFailed Tests:")
	for _, r := range results {
		if !r.passed {
			fmt.Fprintf(a.stdout, "- %s: %s\n", r.name, r.details)
		}
	}
	return fmt.Errorf("%d of %d self-tests failed", failed, len(results))
}

func (a *app) runSelfTest(tc selfTest) selfTestResult {
	fmt.Fprintf(a.stdout, "\n%s %s\n", a.paint(ansiCyan, "Running test:"), tc.name)
	fmt.Fprintln(a.stdout, strings.Repeat("-", 60))

	buf, err := tc.packet.Bytes()
	if err != nil {
		details := fmt.Sprintf("could not build packet: %v", err)
		fmt.Fprintf(a.stdout, "Result: %s\nDetails: %s\n", a.paint(ansiRed, "FAIL"), details)
		return selfTestResult{name: tc.name, details: details}
	}
	if tc.truncate > 0 && tc.truncate < len(buf) {
		buf = buf[:tc.truncate]
	}

	res := freed.Classify(buf)
	r := selfTestResult{name: tc.name, passed: res.Valid() == tc.wantValid}
	if r.passed {
		r.details = "Validation result matches expected"
		fmt.Fprintf(a.stdout, "Result: %s\n", a.paint(ansiGreen, "PASS"))
	} else {
		r.details = fmt.Sprintf("Expected valid=%t, got valid=%t", tc.wantValid, res.Valid())
		fmt.Fprintf(a.stdout, "Result: %s\n", a.paint(ansiRed, "FAIL"))
	}
	fmt.Fprintf(a.stdout, "Details: %s\n", r.details)

	if res.Valid() {
		p := res.Packet
		fmt.Fprintln(a.stdout, "\nPacket Contents:")
		fmt.Fprintf(a.stdout, "  Frame: %d\n", p.Frame)
		fmt.Fprintf(a.stdout, "  Position: X=%.2f, Y=%.2f, Z=%.2f\n", p.X, p.Y, p.Z)
		fmt.Fprintf(a.stdout, "  Rotation: Pan=%.2f, Tilt=%.2f, Roll=%.2f\n", p.Pan, p.Tilt, p.Roll)
		if p.HasLens() {
			fmt.Fprintf(a.stdout, "  Lens: Zoom=%.2f, Focus=%.2f\n", p.Zoom(), p.Focus())
		}
	} else {
		fmt.Fprintln(a.stdout, "\nRaw packet data:")
		fmt.Fprintf(a.stdout, "  Hex: %s\n", hex.EncodeToString(buf))
		fmt.Fprintf(a.stdout, "  Reason: %s\n", res.Reason())
	}
	return r
}
