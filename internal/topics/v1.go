package topics

import "fmt"

// v1Grammar is the original flat layout. Scene objects live under
// {realm}/s/{ns}/{scene}/..., environment data under {realm}/env/...,
// device IPC under {realm}/d/..., chat under {realm}/c/{ns}/..., with fixed
// system topics for the runtime manager, apriltags and network metrics.
type v1Grammar struct{}

func (v1Grammar) Version() Version { return V1 }

func (v1Grammar) PublicReadSubs(realm string) []string {
	return []string{fmt.Sprintf("%s/s/%s/#", realm, PublicNamespace)}
}

func (v1Grammar) DeviceAccess(realm, device string) (pubs, subs []string) {
	t := fmt.Sprintf("%s/d/%s/#", realm, device)
	return []string{t}, []string{t}
}

func (v1Grammar) AllScenesAccess(realm string) (pubs, subs []string) {
	all := []string{
		fmt.Sprintf("%s/s/#", realm),
		fmt.Sprintf("%s/env/#", realm),
	}
	return all, all
}

func (v1Grammar) AllDevicesAccess(realm string) (pubs, subs []string) {
	t := fmt.Sprintf("%s/d/#", realm)
	return []string{t}, []string{t}
}

// TargetDiagnosticsPubs is the vio camera diagnostics channel, staff only.
func (v1Grammar) TargetDiagnosticsPubs(realm, scene string) []string {
	return []string{fmt.Sprintf("%s/vio/%s/#", realm, scene)}
}

func (v1Grammar) NamespaceAccess(realm, ns string) (pubs, subs []string) {
	all := []string{
		fmt.Sprintf("%s/s/%s/#", realm, ns),
		fmt.Sprintf("%s/env/%s/#", realm, ns),
		fmt.Sprintf("%s/d/%s/#", realm, ns),
	}
	return all, all
}

// NamespaceReadSubs: v1 has no namespace viewer grants.
func (v1Grammar) NamespaceReadSubs(realm, ns string) []string { return nil }

func (v1Grammar) SceneAccess(realm, scene string) (pubs, subs []string) {
	all := []string{
		fmt.Sprintf("%s/s/%s/#", realm, scene),
		fmt.Sprintf("%s/env/%s/#", realm, scene),
	}
	return all, all
}

func (v1Grammar) SceneReadSubs(realm, scene, userClient string) []string {
	return []string{
		fmt.Sprintf("%s/s/%s/#", realm, scene),
		fmt.Sprintf("%s/env/%s/#", realm, scene),
	}
}

func (v1Grammar) SceneWritePubs(realm, scene, userClient string) []string {
	return []string{
		fmt.Sprintf("%s/s/%s/#", realm, scene),
		fmt.Sprintf("%s/env/%s/#", realm, scene),
	}
}

func (v1Grammar) AvatarPubs(realm, scene, camID, handLeftID, handRightID string) []string {
	var pubs []string
	if camID != "" {
		pubs = append(pubs,
			fmt.Sprintf("%s/s/%s/%s", realm, scene, camID),
			fmt.Sprintf("%s/s/%s/%s/#", realm, scene, camID),
		)
	}
	if handLeftID != "" {
		pubs = append(pubs, fmt.Sprintf("%s/s/%s/%s", realm, scene, handLeftID))
	}
	if handRightID != "" {
		pubs = append(pubs, fmt.Sprintf("%s/s/%s/%s", realm, scene, handRightID))
	}
	return pubs
}

// PresenceAccess: v1 chat is namespaced outside the scene tree, with a
// private inbound channel keyed by the caller's id and an open broadcast
// channel.
func (v1Grammar) PresenceAccess(realm, scene, userID, userClient string) (pubs, subs []string) {
	ns := namespaceOf(scene)
	subs = []string{
		fmt.Sprintf("%s/c/%s/p/%s/#", realm, ns, userID),
		fmt.Sprintf("%s/c/%s/o/#", realm, ns),
	}
	pubs = []string{
		fmt.Sprintf("%s/c/%s/o/%s", realm, ns, userClient),
		fmt.Sprintf("%s/c/%s/p/+/%s", realm, ns, userClient),
	}
	return pubs, subs
}

// RenderFusionAccess: the capability does not exist in the v1 layout.
func (v1Grammar) RenderFusionAccess(realm, scene, userClient string) (pubs, subs []string) {
	return nil, nil
}

// EnvironmentAccess: the capability does not exist in the v1 layout.
func (v1Grammar) EnvironmentAccess(realm, scene, userClient string) (pubs, subs []string) {
	return nil, nil
}

func (v1Grammar) AprilTagAccess(realm string, authenticated bool) (pubs, subs []string) {
	t := fmt.Sprintf("%s/g/a/#", realm)
	subs = []string{t}
	if authenticated {
		pubs = []string{t}
	}
	return pubs, subs
}

func (v1Grammar) RuntimeAccess(realm, userClient string) (pubs, subs []string) {
	t := fmt.Sprintf("%s/proc/#", realm)
	return []string{t}, []string{t}
}

func (v1Grammar) NetworkAccess(targeted bool) (pubs, subs []string) {
	pubs = []string{"$NETWORK/latency"}
	if !targeted {
		subs = []string{"$NETWORK"}
	}
	return pubs, subs
}

func (v1Grammar) ServiceReadAllSubs(realm string) []string {
	return []string{fmt.Sprintf("%s/s/#", realm)}
}
