package worker

// Start wires every worker loop onto sup: the send loop, the own-DM
// receive loop, the medium-key rotation loop, the dynamic per-group loop
// manager, and the rekey-application loop that the group message loops
// feed via an internal channel (spec §2 item 8, §5).
func Start(sup *Supervisor, deps Deps) {
	rekeyCh := make(chan RekeyRequest, 16)

	sup.Go(SendLoop(deps))
	sup.Go(DMReceiveLoop(deps))
	sup.Go(MediumKeyRotationLoop(deps))
	sup.Go(GroupLoopManager(sup, deps, rekeyCh))
	sup.Go(RekeyLoop(deps, rekeyCh))
}
