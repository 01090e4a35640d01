// Package checkpoint produces the per-epoch stake pool checkpoint: it scans
// the ledger for every supported pool, measures each one and folds the
// snapshot-wide totals. Individual pool failures are isolated and reported
// rather than aborting the run.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"solana-stakepool-lab/internal/jito"
	"solana-stakepool-lab/internal/layout"
	"solana-stakepool-lab/internal/ledger"
	"solana-stakepool-lab/internal/provider"
)

const defaultWorkers = 4

// Options tunes a checkpoint run.
type Options struct {
	// Workers bounds concurrent pool builds. Defaults to 4.
	Workers int

	// EpochDuration is the measured wall-clock length of the epoch in
	// seconds, recorded on the checkpoint for APR annualization.
	EpochDuration float64
}

// PoolFailure records one pool that could not be measured.
type PoolFailure struct {
	Address  string
	Provider string
	Err      error
}

// Result is a completed checkpoint run.
type Result struct {
	Metas    *provider.Metas
	Failures []PoolFailure
}

type buildJob struct {
	address      string
	providerName string
	run          func(context.Context) (provider.StakePool, error)
}

// Generate builds the checkpoint for the snapshot the sources describe.
// Pools are discovered by program scan (SPL and Socean) plus the single
// Marinade state account, then measured concurrently.
func Generate(ctx context.Context, accounts ledger.AccountSource, rewards ledger.RewardsSource, tips jito.RewardsLookup, opts Options) (*Result, error) {
	ec, err := accounts.EpochContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("epoch context: %w", err)
	}
	supply, err := accounts.CirculatingSupply(ctx)
	if err != nil {
		return nil, fmt.Errorf("circulating supply: %w", err)
	}
	nativeStake, err := accounts.TotalEpochStake(ctx)
	if err != nil {
		return nil, fmt.Errorf("total epoch stake: %w", err)
	}

	src := provider.BuildSources{Accounts: accounts, Rewards: rewards, Tips: tips}
	jobs, failures, err := discoverPools(ctx, accounts, src, ec.Epoch)
	if err != nil {
		return nil, err
	}

	pools, buildFailures := runBuilds(ctx, jobs, opts.Workers)
	failures = append(failures, buildFailures...)
	for _, f := range failures {
		log.Printf("[checkpoint] pool %s (%s) failed: %v", f.Address, f.Provider, f.Err)
	}

	metas := &provider.Metas{
		StakePools:       pools,
		BankHash:         ec.BankHash,
		TotalSolSupply:   supply,
		TotalNativeStake: nativeStake,
		Epoch:            ec.Epoch,
		EpochDuration:    opts.EpochDuration,
		Slot:             ec.Slot,
	}
	for _, pool := range pools {
		s, err := pool.Summary()
		if err != nil {
			return nil, err
		}
		metas.TotalLiquidStake += s.Allocation.Delegated()
		metas.TotalUndelegatedLamports += s.Allocation.Undelegated
	}

	return &Result{Metas: metas, Failures: failures}, nil
}

// discoverPools scans the ledger for every measurable pool and returns one
// build job per pool. Accounts that are pool-sized but not initialized
// pools are skipped.
func discoverPools(ctx context.Context, accounts ledger.AccountSource, src provider.BuildSources, epoch uint64) ([]buildJob, []PoolFailure, error) {
	var jobs []buildJob
	var failures []PoolFailure

	splAccounts, err := accounts.ProgramAccounts(ctx, layout.StakePoolProgramID, layout.SplStakePoolLen)
	if err != nil {
		return nil, nil, fmt.Errorf("scan spl pools: %w", err)
	}
	for _, ka := range splAccounts {
		pool, err := layout.DecodeSplStakePool(ka.Account.Data)
		if err != nil {
			failures = append(failures, PoolFailure{Address: ka.Address, Provider: provider.ProviderSpl, Err: err})
			continue
		}
		if !pool.IsValid() {
			continue
		}
		address := ka.Address
		jobs = append(jobs, buildJob{
			address:      address,
			providerName: provider.ProviderSpl,
			run: func(ctx context.Context) (provider.StakePool, error) {
				meta, err := provider.BuildSplMeta(ctx, src, address, pool, epoch)
				if err != nil {
					return provider.StakePool{}, err
				}
				return provider.StakePool{Spl: meta}, nil
			},
		})
	}

	soceanAccounts, err := accounts.ProgramAccounts(ctx, layout.SoceanProgramID, layout.SoceanStakePoolLen)
	if err != nil {
		return nil, nil, fmt.Errorf("scan socean pools: %w", err)
	}
	for _, ka := range soceanAccounts {
		pool, err := layout.DecodeSoceanStakePool(ka.Account.Data)
		if err != nil {
			failures = append(failures, PoolFailure{Address: ka.Address, Provider: provider.ProviderSocean, Err: err})
			continue
		}
		if !pool.IsValid() {
			continue
		}
		address := ka.Address
		jobs = append(jobs, buildJob{
			address:      address,
			providerName: provider.ProviderSocean,
			run: func(ctx context.Context) (provider.StakePool, error) {
				meta, err := provider.BuildSoceanMeta(ctx, src, address, pool, epoch)
				if err != nil {
					return provider.StakePool{}, err
				}
				return provider.StakePool{Socean: meta}, nil
			},
		})
	}

	stateAcc, err := accounts.Account(ctx, layout.MarinadeStateAddress)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		// Snapshot predates Marinade or was captured without it.
		log.Printf("[checkpoint] marinade state %s absent, skipping", layout.MarinadeStateAddress)
	case err != nil:
		return nil, nil, fmt.Errorf("fetch marinade state: %w", err)
	default:
		state, err := layout.DecodeMarinadeState(stateAcc.Data)
		if err != nil {
			failures = append(failures, PoolFailure{
				Address: layout.MarinadeStateAddress, Provider: provider.ProviderMarinade, Err: err,
			})
			break
		}
		jobs = append(jobs, buildJob{
			address:      layout.MarinadeStateAddress,
			providerName: provider.ProviderMarinade,
			run: func(ctx context.Context) (provider.StakePool, error) {
				meta, err := provider.BuildMarinadeMeta(ctx, src, layout.MarinadeStateAddress, state, epoch)
				if err != nil {
					return provider.StakePool{}, err
				}
				return provider.StakePool{Marinade: meta}, nil
			},
		})
	}

	return jobs, failures, nil
}

// runBuilds executes the jobs on a bounded worker pool. Output order is the
// job order regardless of completion order, so checkpoints are
// deterministic for a given snapshot.
func runBuilds(ctx context.Context, jobs []buildJob, workers int) ([]provider.StakePool, []PoolFailure) {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	type outcome struct {
		pool provider.StakePool
		fail *PoolFailure
	}
	outcomes := make([]outcome, len(jobs))

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				job := jobs[i]
				pool, err := job.run(ctx)
				if err != nil {
					outcomes[i] = outcome{fail: &PoolFailure{
						Address: job.address, Provider: job.providerName, Err: err,
					}}
					continue
				}
				outcomes[i] = outcome{pool: pool}
			}
		}()
	}
	for i := range jobs {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	var pools []provider.StakePool
	var failures []PoolFailure
	for _, o := range outcomes {
		if o.fail != nil {
			failures = append(failures, *o.fail)
			continue
		}
		pools = append(pools, o.pool)
	}
	sort.SliceStable(failures, func(i, j int) bool { return failures[i].Address < failures[j].Address })
	return pools, failures
}
