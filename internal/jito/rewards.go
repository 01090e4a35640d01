// Package jito attributes MEV tip-distribution rewards to individual stake
// accounts from a per-epoch stake meta collection.
package jito

import (
	"fmt"
	"math/bits"
)

// feeBasisPointsDenominator converts validator commission basis points to a
// fraction of total tips.
const feeBasisPointsDenominator = 10_000

// StakeMetaCollection is the per-epoch tip distribution input: one entry per
// validator that ran the tip distribution program. Field names follow the
// tip distributor's serialized form so its output files decode directly.
type StakeMetaCollection struct {
	StakeMetas               []StakeMeta `json:"stake_metas"`
	TipDistributionProgramID string      `json:"tip_distribution_program_id"`
	BankHash                 string      `json:"bank_hash"`
	Epoch                    uint64      `json:"epoch"`
	Slot                     uint64      `json:"slot"`
}

// StakeMeta is one validator's tip distribution snapshot.
type StakeMeta struct {
	ValidatorVoteAccount string               `json:"validator_vote_account"`
	ValidatorNodePubkey  string               `json:"validator_node_pubkey"`
	TipDistributionMeta  *TipDistributionMeta `json:"maybe_tip_distribution_meta"`
	Delegations          []Delegation         `json:"delegations"`
	TotalDelegated       uint64               `json:"total_delegated"`
	Commission           uint8                `json:"commission"`
}

// TipDistributionMeta is the tip pot and commission for one validator.
type TipDistributionMeta struct {
	MerkleRootUploadAuthority string `json:"merkle_root_upload_authority"`
	TipDistributionPubkey     string `json:"tip_distribution_pubkey"`
	TotalTips                 uint64 `json:"total_tips"`
	ValidatorFeeBps           uint16 `json:"validator_fee_bps"`
}

// Delegation is one stake account's delegated lamports to the validator.
type Delegation struct {
	StakeAccountPubkey string `json:"stake_account_pubkey"`
	StakerPubkey       string `json:"staker_pubkey"`
	WithdrawerPubkey   string `json:"withdrawer_pubkey"`
	LamportsDelegated  uint64 `json:"lamports_delegated"`
}

// RewardsLookup maps stake account address to its attributed tip lamports
// for one epoch.
type RewardsLookup map[string]uint64

// Rewards returns the lamports attributed to a stake account, 0 when the
// account earned none.
func (l RewardsLookup) Rewards(stakeAccount string) uint64 {
	return l[stakeAccount]
}

// BuildRewardsLookup computes each stake account's share of its validator's
// tips. The validator keeps floor(total_tips * fee_bps / 10000); the
// remainder splits pro rata by delegated lamports, each share floored.
// Validators with no tip distribution or no delegated stake contribute
// nothing.
func BuildRewardsLookup(collection *StakeMetaCollection) (RewardsLookup, error) {
	lookup := make(RewardsLookup)
	for _, meta := range collection.StakeMetas {
		tdm := meta.TipDistributionMeta
		if tdm == nil || tdm.TotalTips == 0 {
			continue
		}
		if tdm.ValidatorFeeBps > feeBasisPointsDenominator {
			return nil, fmt.Errorf("validator %s fee %d bps exceeds %d",
				meta.ValidatorVoteAccount, tdm.ValidatorFeeBps, feeBasisPointsDenominator)
		}
		if meta.TotalDelegated == 0 {
			continue
		}

		validatorCut := mulDiv(tdm.TotalTips, uint64(tdm.ValidatorFeeBps), feeBasisPointsDenominator)
		remaining := tdm.TotalTips - validatorCut

		for _, d := range meta.Delegations {
			if d.LamportsDelegated == 0 {
				continue
			}
			if d.LamportsDelegated > meta.TotalDelegated {
				return nil, fmt.Errorf("validator %s delegation %s exceeds total delegated",
					meta.ValidatorVoteAccount, d.StakeAccountPubkey)
			}
			lookup[d.StakeAccountPubkey] += mulDiv(d.LamportsDelegated, remaining, meta.TotalDelegated)
		}
	}
	return lookup, nil
}

// mulDiv computes floor(a*b/d) with a 128-bit intermediate so lamport-scale
// products cannot overflow.
func mulDiv(a, b, d uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, d)
	return q
}
