package dashboard

import (
	"net/http"
)

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(uiHTML))
}

const uiHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>tradewatch</title>
  <style>
    body { font-family: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Arial; margin: 0; background:#fafafa; }
    .wrap { max-width: 1100px; margin: 0 auto; padding: 16px; }
    .cards { display:grid; grid-template-columns: repeat(4, 1fr); gap: 12px; }
    .card { background:#fff; border:1px solid #eee; border-radius:8px; padding:12px; }
    .card .k { color:#666; font-size:12px; }
    .card .v { font-size:20px; font-weight:600; margin-top:4px; }
    .pos { color:#0a7d33; } .neg { color:#c22; }
    table { width:100%; border-collapse: collapse; background:#fff; }
    th, td { text-align:left; padding:8px; border-bottom:1px solid #eee; font-size:13px; }
    th { color:#666; font-weight:500; }
    .row { display:flex; gap:8px; align-items:center; flex-wrap:wrap; margin:16px 0 8px; }
    .muted { color:#666; font-size:12px; }
    .stale { color:#b8860b; }
    .error { color:#c22; }
    button { border:1px solid #ddd; background:#fff; border-radius:6px; padding:4px 10px; cursor:pointer; }
    button:hover { background:#f5f5f5; }
    svg { background:#fff; border:1px solid #eee; border-radius:8px; }
    pre { background:#0b1020; color:#d6e2ff; padding:12px; border-radius:8px; overflow:auto; max-height:260px; font-size:12px; }
  </style>
</head>
<body>
<div class="wrap">
  <div class="row">
    <h2 style="margin:0">tradewatch</h2>
    <button onclick="forceRefresh()">refresh</button>
    <span id="freshness" class="muted"></span>
  </div>

  <div class="cards" id="cards"></div>

  <div class="row"><h3 style="margin:0">Equity</h3><span id="equityStatus" class="muted"></span></div>
  <svg id="chart" width="1068" height="220"></svg>

  <div class="row"><h3 style="margin:0">Open positions</h3><span id="posStatus" class="muted"></span></div>
  <table id="positions"><thead><tr>
    <th>symbol</th><th>side</th><th>size</th><th>entry</th><th>mark</th><th>uPnL</th><th>SL</th><th>TP</th><th></th>
  </tr></thead><tbody></tbody></table>

  <div class="row"><h3 style="margin:0">Decision log</h3></div>
  <pre id="decisions">loading…</pre>
</div>

<script>
async function getJSON(url) {
  const r = await fetch(url);
  const body = await r.json();
  if (!r.ok) throw new Error(body.error || r.statusText);
  return body;
}

function fmt(x) { return Number(x).toLocaleString(undefined, {maximumFractionDigits: 2}); }

function card(k, v, cls) {
  return '<div class="card"><div class="k">'+k+'</div><div class="v '+(cls||'')+'">'+v+'</div></div>';
}

function renderPortfolio(body) {
  const p = body.portfolio;
  const el = document.getElementById('cards');
  el.innerHTML =
    card('Total equity', fmt(p.total_equity)) +
    card('Cash', fmt(p.cash_balance)) +
    card('Positions value', fmt(p.positions_value)) +
    card('Unrealized PnL', fmt(p.unrealized_pnl), Number(p.unrealized_pnl) >= 0 ? 'pos' : 'neg');
  const f = document.getElementById('freshness');
  f.textContent = body.status + (body.error ? ' — ' + body.error : '');
  f.className = body.status === 'error' ? 'error' : (body.status === 'stale' ? 'stale' : 'muted');
}

function renderChart(body) {
  document.getElementById('equityStatus').textContent = body.status + ', ' + body.raw_count + ' samples';
  const pts = body.chart || [];
  const svg = document.getElementById('chart');
  const W = svg.clientWidth || 1068, H = 220, pad = 30;
  if (pts.length === 0) { svg.innerHTML = '<text x="20" y="30" fill="#999">no equity data yet</text>'; return; }
  const vals = pts.map(p => p.value);
  const min = Math.min(...vals), max = Math.max(...vals), span = (max - min) || 1;
  const x = i => pad + i * (W - 2*pad) / Math.max(pts.length - 1, 1);
  const y = v => H - pad - (v - min) * (H - 2*pad) / span;
  let d = pts.map((p, i) => (i ? 'L' : 'M') + x(i).toFixed(1) + ',' + y(p.value).toFixed(1)).join(' ');
  let labels = '';
  const step = Math.ceil(pts.length / 8);
  for (let i = 0; i < pts.length; i += step) {
    labels += '<text x="'+x(i).toFixed(1)+'" y="'+(H-8)+'" fill="#999" font-size="10" text-anchor="middle">'+pts[i].label+'</text>';
  }
  svg.innerHTML = labels +
    '<text x="4" y="'+(y(max)+4)+'" fill="#999" font-size="10">'+fmt(max)+'</text>' +
    '<text x="4" y="'+(y(min)+4)+'" fill="#999" font-size="10">'+fmt(min)+'</text>' +
    '<path d="'+d+'" fill="none" stroke="#2563eb" stroke-width="1.5"/>';
}

function renderPositions(body) {
  const el = document.querySelector('#positions tbody');
  const st = document.getElementById('posStatus');
  st.textContent = body.status + (body.error ? ' — ' + body.error : '');
  if (!body.positions.length) { el.innerHTML = '<tr><td colspan="9" class="muted">no open positions</td></tr>'; return; }
  el.innerHTML = body.positions.map(p =>
    '<tr><td>'+p.symbol+'</td><td>'+p.side+'</td><td>'+fmt(p.size)+'</td><td>'+fmt(p.entry_price)+
    '</td><td>'+fmt(p.mark_price)+'</td><td class="'+(Number(p.unrealized_pnl)>=0?'pos':'neg')+'">'+fmt(p.unrealized_pnl)+
    '</td><td>'+fmt(p.stop_loss)+'</td><td>'+fmt(p.take_profit)+'</td>'+
    '<td><button onclick="editProtection(\''+p.id+'\')">SL/TP</button> '+
    '<button onclick="closePosition(\''+p.id+'\')">close</button></td></tr>'
  ).join('');
}

function renderDecisions(body) {
  const el = document.getElementById('decisions');
  if (!body.decisions.length) { el.textContent = 'no decisions recorded'; return; }
  el.textContent = body.decisions.map(d =>
    d.ts.replace('T',' ').slice(0,19)+'  '+d.action.toUpperCase().padEnd(7)+' '+d.symbol+'  '+d.reason
  ).join('\n');
}

async function reloadAll() {
  try { renderPortfolio(await getJSON('/api/portfolio')); } catch (e) { document.getElementById('freshness').textContent = e.message; }
  try { renderChart(await getJSON('/api/equity?limit=500')); } catch (e) { document.getElementById('equityStatus').textContent = e.message; }
  try { renderPositions(await getJSON('/api/positions')); } catch (e) { document.getElementById('posStatus').textContent = e.message; }
  try { renderDecisions(await getJSON('/api/decisions?limit=50')); } catch (e) { document.getElementById('decisions').textContent = e.message; }
}

async function forceRefresh() {
  await fetch('/api/refresh', {method: 'POST'});
  setTimeout(reloadAll, 300);
}

async function closePosition(id) {
  if (!confirm('Close position ' + id + '?')) return;
  const r = await fetch('/api/positions/'+id+'/close', {method:'POST'});
  if (!r.ok) alert((await r.json()).error);
  setTimeout(reloadAll, 300);
}

async function editProtection(id) {
  const sl = prompt('Stop-loss (empty = keep current):');
  if (sl === null) return;
  const tp = prompt('Take-profit (empty = keep current):');
  if (tp === null) return;
  const body = {};
  if (sl.trim() !== '') body.stop_loss = sl.trim();
  if (tp.trim() !== '') body.take_profit = tp.trim();
  const r = await fetch('/api/positions/'+id+'/protection', {
    method:'POST', headers:{'Content-Type':'application/json'}, body: JSON.stringify(body)
  });
  if (!r.ok) alert((await r.json()).error);
  setTimeout(reloadAll, 300);
}

// live updates over websocket; full reload stays on a slow poll
try {
  const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
  ws.onmessage = ev => {
    const snap = JSON.parse(ev.data);
    if (snap.portfolio) renderPortfolio({portfolio: snap.portfolio, status: snap.portfolio_status});
    renderPositions({positions: snap.positions || [], status: snap.positions_status});
  };
} catch (e) { /* fall back to polling */ }

reloadAll();
setInterval(reloadAll, 30000);
</script>
</body>
</html>
`
