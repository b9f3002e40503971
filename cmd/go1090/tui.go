package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/awesome-gocui/gocui"
	. "github.com/logrusorgru/aurora"

	log "github.com/sirupsen/logrus"

	"go1090"
	"go1090/modes"
)

// runTUI drives an optional gocui dashboard over the live fleet table,
// grounded on Regentag-go1090's main.go update()/layout() pair — kept and
// adapted to the new Fleet/Aircraft types and show-state lifecycle
// instead of Regentag-go1090's flat Sky map.
func runTUI(recv *go1090.Receiver) {
	g, err := gocui.NewGui(gocui.OutputNormal, false)
	if err != nil {
		log.Errorf("[TUI] %v", err)
		return
	}
	defer g.Close()

	g.SetManagerFunc(layout)
	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quitTUI); err != nil {
		log.Errorf("[TUI] keybinding: %v", err)
		return
	}

	// The receiver's own tick loop already drives show-state transitions
	// and staleness expiry; the TUI only needs to redraw periodically.
	go func() {
		for range time.Tick(500 * time.Millisecond) {
			g.Update(func(g *gocui.Gui) error { return renderFleet(g, recv) })
		}
	}()

	if err := g.MainLoop(); err != nil && !gocui.IsQuit(err) {
		log.Errorf("[TUI] %v", err)
	}
}

func layout(g *gocui.Gui) error {
	const maxX = 92
	_, maxY := g.Size()

	v, err := g.SetView("status", 0, 0, maxX-2, 2, 0)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	v.Title = " STATUS "
	fmt.Fprintln(v, " A/C: --  LAST UPDATE: 0000-00-00 00:00:00")

	v, err = g.SetView("list", 0, 3, maxX-2, maxY-1, 0)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	v.Title = " FLEET "
	return nil
}

func quitTUI(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}

// renderFleet redraws the status and fleet list views from a fresh
// Fleet snapshot.
func renderFleet(g *gocui.Gui, recv *go1090.Receiver) error {
	snapshot := recv.Fleet.Snapshot()

	s, err := g.View("status")
	if err != nil {
		return err
	}
	s.Clear()
	fmt.Fprintf(s, " A/C: %02d  LAST UPDATE: %s\n",
		Green(len(snapshot)),
		Bold(Green(time.Now().Format("2006-01-02 15:04:05"))))

	l, err := g.View("list")
	if err != nil {
		return err
	}
	l.Clear()
	fmt.Fprintln(l, " ICAO ADDR  FLIGHT    SQUAWK   ALT    SPD    HDG     LAT      LON   SEEN")
	fmt.Fprintln(l, " ===================================================================")

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Addr < snapshot[j].Addr })

	for _, a := range snapshot {
		if a.Show == modes.ShowNone {
			continue
		}
		lat, lon := "   --   ", "   --   "
		if a.HasPosition {
			lat = fmt.Sprintf("%8.4f", a.Position.Lat)
			lon = fmt.Sprintf("%9.4f", a.Position.Lon)
		}
		line := fmt.Sprintf(" %06X  %-8s  %04d  %6d  %-5.0f  %-3.0f  %s  %s  %s",
			a.Addr, a.Callsign, a.Squawk, a.Altitude, a.GroundSpeed, a.Heading,
			lat, lon, a.LastSeen.Format("15:04:05"))

		switch a.Show {
		case modes.ShowFirstTime:
			fmt.Fprintln(l, Sprintf(Bold(Green(line))))
		case modes.ShowLastTime:
			fmt.Fprintln(l, Sprintf(Red(line)))
		default:
			fmt.Fprintln(l, Sprintf(Yellow(line)))
		}
	}
	return nil
}
