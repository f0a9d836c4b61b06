package booking

import (
	"context"
	"errors"

	"github.com/example/yoyaku-dash/internal/locator"
)

// traverse walks the booking form. Any step that times out ends the run;
// later steps are never attempted.
func (r *run) traverse(ctx context.Context) error {
	r.enter(PhaseForm, "selecting %s", r.req.Slot)

	band := r.req.Slot.HourBandLabel()
	if err := r.pickSlot(ctx, StepHourBand, band); err != nil {
		return err
	}
	exact := r.req.Slot.ExactLabel()
	if err := r.pickSlot(ctx, StepExactTime, exact); err != nil {
		return err
	}

	confirm := locator.ConfirmButton()
	if err := r.sess.WaitClickable(ctx, confirm, r.cfg.StepTimeout); err != nil {
		return &StepError{Step: StepConfirm, Query: confirm.Name, Err: err}
	}
	if err := r.sess.ScrollIntoView(ctx, confirm); err != nil {
		return &StepError{Step: StepConfirm, Query: confirm.Name, Err: err}
	}
	if err := r.sess.Click(ctx, confirm); err != nil {
		return &StepError{Step: StepConfirm, Query: confirm.Name, Err: err}
	}
	r.emit(KindInfo, "confirmation screen passed")

	return r.commit(ctx)
}

// pickSlot clicks the availability mark next to label. A row without a mark
// means the time is fully booked.
func (r *run) pickSlot(ctx context.Context, step Step, label string) error {
	link := locator.SlotLink(label)
	if err := r.sess.WaitClickable(ctx, link, r.cfg.StepTimeout); err != nil {
		if errors.Is(err, locator.ErrTimeout) {
			if ok, ferr := r.sess.Find(ctx, locator.SlotRow(label)); ferr == nil && ok {
				err = ErrSlotUnavailable
			}
		}
		return &StepError{Step: step, Query: link.Name, Err: err}
	}
	if err := r.sess.Click(ctx, link); err != nil {
		return &StepError{Step: step, Query: link.Name, Err: err}
	}
	r.emit(KindInfo, "picked %s", label)
	return nil
}

func (r *run) commit(ctx context.Context) error {
	button := locator.ReserveButton()
	if err := r.sess.WaitClickable(ctx, button, r.cfg.StepTimeout); err != nil {
		return &StepError{Step: StepCommit, Query: button.Name, Err: err}
	}
	if !r.cfg.CommitEnabled {
		r.emit(KindWarning, "commit disabled: leaving the final reserve button unclicked")
		return nil
	}
	if err := r.sess.Click(ctx, button); err != nil {
		return &StepError{Step: StepCommit, Query: button.Name, Err: err}
	}
	r.res.Committed = true
	return nil
}
