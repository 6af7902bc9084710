/*
Package updater keeps DNS "A" records pointed at the caller's public address.

Usage starts with [updater.New],
which takes the accounts to reconcile: a [Provider] for each credential and the domains it manages.
The public address comes from a [Resolver]; [WebResolver] is the default,
with [STUNResolver], [DNSResolver], [UPnPResolver], [InterfaceResolver] and [StaticResolver] as alternatives.

A provider has no update primitive, so a stale record is removed, the new one added,
and the record set read back until it shows exactly the target value.
[Client.RunCycle] does this once for every configured domain;
[RunDaemon] repeats it on an interval and backs off after failures.
On unix systems [Supervisor] runs that loop as a detached worker tracked by a pid file.
*/
package updater
