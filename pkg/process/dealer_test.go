// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package process_test

import (
	"testing"

	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"

	"github.com/AccelByte/extend-table-manager/pkg/process"
	"github.com/AccelByte/extend-table-manager/pkg/testsetup"
)

func dealerArguments() process.DealerArguments {
	return process.DealerArguments{
		MatchName:          "match.Alice.holdem",
		GameDefinitionFile: "/games/holdem.limit.2p.game",
		NumberOfHands:      10,
		RandomSeed:         42,
		PlayerNames:        []string{"Alice", "Tester"},
		Options:            []string{"-a", "--t_response", "80000"},
	}
}

func TestDealerArguments_Args(t *testing.T) {
	args := dealerArguments().Args([]int{0, 19001})

	assert.Equal(t, []string{
		"match.Alice.holdem", "/games/holdem.limit.2p.game", "10", "42",
		"Alice", "Tester",
		"-a", "--t_response", "80000",
		"-p", "0,19001",
	}, args)
}

func TestParsePorts(t *testing.T) {
	tests := []struct {
		name    string
		banner  string
		want    []int
		wantErr bool
	}{
		{name: "two_ports", banner: "18791 18792", want: []int{18791, 18792}},
		{name: "tabs_and_newline", banner: "1\t2\n", want: []int{1, 2}},
		{name: "empty", banner: "", wantErr: true},
		{name: "garbage", banner: "listening on 1", wantErr: true},
		{name: "out_of_range", banner: "70000", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := process.ParsePorts(tt.banner)
			if tt.wantErr {
				assert.ErrorIs(t, err, process.ErrDealerBanner)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDealerRunner_StartReturnsBoundPorts(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	supervisor := testsetup.NewFakeSupervisor()
	runner := process.DealerRunner{Supervisor: supervisor, Command: "dealer", LogDirectory: t.TempDir()}

	info, err := runner.Start(g.TestScope, dealerArguments(), []int{0, 19001})

	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(info.PID).To(BeNumerically(">", 0))
	g.Expect(info.PortNumbers).To(HaveLen(2))
	g.Expect(info.PortNumbers[0]).ToNot(BeZero())
	g.Expect(info.PortNumbers[1]).To(Equal(19001))
	g.Expect(supervisor.Spawned(process.KindDealer)).To(HaveLen(1))
}

func TestDealerRunner_StartKillsDealerWithBadBanner(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	supervisor := testsetup.NewFakeSupervisor()
	runner := process.DealerRunner{Supervisor: supervisor, Command: "dealer", LogDirectory: t.TempDir()}

	_, err := runner.Start(g.TestScope, dealerArguments(), []int{0})

	g.Expect(err).To(MatchError(process.ErrDealerBanner))
	g.Expect(supervisor.Alive(process.KindDealer)).To(BeEmpty())
}
